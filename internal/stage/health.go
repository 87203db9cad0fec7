package stage

import "strings"

// Health is a stage's readiness as reported by HealthCheck.
type Health struct {
	Name   string
	Ready  bool
	Detail string
}

func Healthy(name string) Health {
	return Health{Name: name, Ready: true}
}

// Unhealthy marks name as not ready. detail names the missing dependency.
func Unhealthy(name, detail string) Health {
	return Health{Name: name, Detail: detail}
}

// Summarize joins the stages that are not ready as "name: detail" pairs.
// It returns "" when every stage is ready.
func Summarize(health []Health) string {
	var parts []string
	for _, h := range health {
		if h.Ready {
			continue
		}
		if h.Detail == "" {
			parts = append(parts, h.Name)
			continue
		}
		parts = append(parts, h.Name+": "+h.Detail)
	}
	return strings.Join(parts, "; ")
}
