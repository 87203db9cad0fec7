package main

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"episodegen/internal/config"
	"episodegen/internal/episodeaccess"
	"episodegen/internal/ipc"
	"episodegen/internal/store"
)

type commandContext struct {
	apiFlag    *string
	configFlag *string
	jsonFlag   *bool

	configOnce sync.Once
	config     *config.Config
	configPath string
	configErr  error
}

func newCommandContext(apiFlag, configFlag *string, jsonFlag *bool) *commandContext {
	return &commandContext{
		apiFlag:    apiFlag,
		configFlag: configFlag,
		jsonFlag:   jsonFlag,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, resolved, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
		c.configPath = resolved
	})
	return c.config, c.configErr
}

// JSONMode reports whether output should be JSON.
func (c *commandContext) JSONMode() bool {
	return c.jsonFlag != nil && *c.jsonFlag
}

func (c *commandContext) apiAddress() string {
	if c.apiFlag != nil && strings.TrimSpace(*c.apiFlag) != "" {
		return strings.TrimSpace(*c.apiFlag)
	}
	if c.config != nil {
		return c.config.Paths.APIBind
	}
	return ""
}

func (c *commandContext) apiToken() string {
	if c.config == nil {
		return ""
	}
	return c.config.Paths.APIToken
}

func (c *commandContext) withClient(fn func(*ipc.Client) error) error {
	client, err := c.dialClient()
	if err != nil {
		return err
	}
	defer client.Close()
	return fn(client)
}

func (c *commandContext) dialClient() (*ipc.Client, error) {
	addr := c.apiAddress()
	client, err := ipc.Dial(addr, c.apiToken())
	if err != nil {
		return nil, wrapDialError(err, addr)
	}
	return client, nil
}

// withAccess runs fn against the daemon when it answers and against the
// local database otherwise.
func (c *commandContext) withAccess(fn func(episodeaccess.Access) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	session, err := episodeaccess.OpenWithFallback(
		func() (*ipc.Client, error) { return ipc.Dial(c.apiAddress(), c.apiToken()) },
		func() (*store.Store, error) { return store.Open(cfg) },
	)
	if err != nil {
		return err
	}
	defer session.Close()
	return fn(session.Access)
}

func wrapDialError(err error, addr string) error {
	var apiErr *ipc.Error
	switch {
	case errors.As(err, &apiErr) && apiErr.Status == 401:
		return fmt.Errorf("connect to daemon at %s: unauthorized; check paths.api_token", addr)
	case errors.Is(err, syscall.ECONNREFUSED):
		return fmt.Errorf("connect to daemon: %s refused the connection; start it with `episodegen serve`", addr)
	default:
		return fmt.Errorf("connect to daemon: %w", err)
	}
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
