package deps

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

const encoderProbeTimeout = 10 * time.Second

// CheckFFmpeg reports whether the configured ffmpeg binary exists and was
// built with the libmp3lame encoder the voice stage needs. An empty binary
// resolves "ffmpeg" from PATH.
func CheckFFmpeg(ctx context.Context, binary string) Status {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		binary = "ffmpeg"
	}
	status := Lookup("FFmpeg", binary)
	if !status.Available {
		return status
	}

	probeCtx, cancel := context.WithTimeout(ctx, encoderProbeTimeout)
	defer cancel()
	var out bytes.Buffer
	cmd := exec.CommandContext(probeCtx, status.Command, "-hide_banner", "-encoders")
	cmd.Stdout = &out
	if err := cmd.Run(); err != nil {
		status.Available = false
		status.Detail = fmt.Sprintf("list encoders: %v", err)
		return status
	}
	if !strings.Contains(out.String(), "libmp3lame") {
		status.Available = false
		status.Detail = "ffmpeg built without libmp3lame"
	}
	return status
}
