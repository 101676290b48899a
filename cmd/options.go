// Copyright © 2024 The ELPS authors

package cmd

import (
	"log/slog"

	"github.com/luthersystems/sighelp/lspclient"
	"github.com/spf13/viper"
)

// Option configures an exported command factory (ShowCommand,
// ReplCommand).
type Option func(*cmdConfig)

type cmdConfig struct {
	viper   *viper.Viper
	servers []lspclient.ServerConfig
	logger  *slog.Logger
}

func newCmdConfig(opts ...Option) *cmdConfig {
	c := &cmdConfig{}
	for _, o := range opts {
		o(c)
	}
	return c
}

// WithViper reads configuration from v instead of the global viper
// instance.
func WithViper(v *viper.Viper) Option {
	return func(c *cmdConfig) { c.viper = v }
}

// WithServers adds language servers to those read from configuration.
// Embedders use it to ship a default server with the command.
func WithServers(servers ...lspclient.ServerConfig) Option {
	return func(c *cmdConfig) { c.servers = append(c.servers, servers...) }
}

// WithLogger replaces the stderr logger built from the verbose flag.
func WithLogger(l *slog.Logger) Option {
	return func(c *cmdConfig) { c.logger = l }
}

// resolve loads the configuration and merges injected servers.
func (c *cmdConfig) resolve() (*config, error) {
	v := c.viper
	if v == nil {
		v = viper.GetViper()
	}
	cfg, err := loadConfig(v)
	if err != nil {
		return nil, err
	}
	cfg.Servers = append(cfg.Servers, c.servers...)
	return cfg, nil
}
