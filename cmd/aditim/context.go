package main

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"github.com/formemu/aditim-monitor-sub000/internal/access"
	"github.com/formemu/aditim-monitor-sub000/internal/api"
	"github.com/formemu/aditim-monitor-sub000/internal/config"
	"github.com/formemu/aditim-monitor-sub000/internal/ipc"
	"github.com/formemu/aditim-monitor-sub000/internal/logging"
	"github.com/formemu/aditim-monitor-sub000/internal/store"
)

type commandContext struct {
	socketFlag *string
	configFlag *string
	jsonFlag   *bool

	configOnce sync.Once
	config     *config.Config
	configPath string
	configErr  error
}

func newCommandContext(socketFlag, configFlag *string, jsonFlag *bool) *commandContext {
	return &commandContext{
		socketFlag: socketFlag,
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

func (c *commandContext) configValue() *config.Config {
	cfg, _ := c.ensureConfig()
	return cfg
}

func (c *commandContext) socketPath() string {
	if c.socketFlag != nil {
		if socket := strings.TrimSpace(*c.socketFlag); socket != "" {
			return socket
		}
	}
	if cfg := c.configValue(); cfg != nil {
		return cfg.SocketPath()
	}
	return ""
}

func (c *commandContext) jsonMode() bool {
	return c.jsonFlag != nil && *c.jsonFlag
}

// withCommands runs fn against the daemon, or against the database directly
// when the daemon socket does not answer.
func (c *commandContext) withCommands(fn func(api.Commands) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	socket := c.socketPath()
	session, err := access.OpenWithFallback(
		func() (*ipc.Client, error) { return ipc.Dial(socket) },
		func() (*store.Store, error) { return store.Open(cfg) },
		logging.NewNop(),
	)
	if err != nil {
		return err
	}
	defer session.Close()
	return fn(session.Commands)
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func parseID(value, what string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid %s id %q", what, value)
	}
	return id, nil
}

func parseIDs(values []string, what string) ([]int64, error) {
	ids := make([]int64, 0, len(values))
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			if strings.TrimSpace(part) == "" {
				continue
			}
			id, err := parseID(part, what)
			if err != nil {
				return nil, err
			}
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
