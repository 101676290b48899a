// Copyright © 2024 The ELPS authors

package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/luthersystems/sighelp/lspclient"
	"github.com/luthersystems/sighelp/popup"
	"github.com/luthersystems/sighelp/sighelp"
	"github.com/spf13/viper"
)

const (
	keyColor         = "color"
	keyTimeout       = "timeout"
	keyWidth         = "width"
	keyDocumentation = "documentation"
	keyVerbose       = "verbose"
	keyServers       = "servers"
)

// config is the resolved configuration of a command run.
type config struct {
	Color         popup.ColorMode
	Timeout       time.Duration
	Width         int
	Documentation bool
	Verbose       bool
	Servers       []lspclient.ServerConfig
}

func setDefaults(v *viper.Viper) {
	v.SetDefault(keyColor, "auto")
	v.SetDefault(keyTimeout, sighelp.DefaultTimeout)
	v.SetDefault(keyWidth, 0)
	v.SetDefault(keyDocumentation, false)
	v.SetDefault(keyVerbose, false)
}

// loadConfig reads the configuration keys from v.
func loadConfig(v *viper.Viper) (*config, error) {
	color, err := popup.ParseColorMode(v.GetString(keyColor))
	if err != nil {
		return nil, err
	}
	cfg := &config{
		Color:         color,
		Timeout:       v.GetDuration(keyTimeout),
		Width:         v.GetInt(keyWidth),
		Documentation: v.GetBool(keyDocumentation),
		Verbose:       v.GetBool(keyVerbose),
	}
	if cfg.Timeout <= 0 {
		return nil, fmt.Errorf("invalid timeout %s", v.GetString(keyTimeout))
	}
	if cfg.Width < 0 {
		return nil, fmt.Errorf("invalid width %d", cfg.Width)
	}
	if err := v.UnmarshalKey(keyServers, &cfg.Servers); err != nil {
		return nil, fmt.Errorf("servers: %w", err)
	}
	for i, s := range cfg.Servers {
		if s.Name == "" || s.Command == "" {
			return nil, fmt.Errorf("servers[%d]: name and command are required", i)
		}
	}
	return cfg, nil
}

// serverFromCommand builds a server config from a shell-style command
// line given on the command line.
func serverFromCommand(command string) (lspclient.ServerConfig, error) {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return lspclient.ServerConfig{}, fmt.Errorf("empty server command")
	}
	return lspclient.ServerConfig{
		Name:    filepath.Base(fields[0]),
		Command: fields[0],
		Args:    fields[1:],
	}, nil
}

func newLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

var languageIDs = map[string]string{
	".c":    "c",
	".cc":   "cpp",
	".cpp":  "cpp",
	".cs":   "csharp",
	".go":   "go",
	".h":    "c",
	".hpp":  "cpp",
	".java": "java",
	".js":   "javascript",
	".jsx":  "javascriptreact",
	".lisp": "lisp",
	".lua":  "lua",
	".py":   "python",
	".rb":   "ruby",
	".rs":   "rust",
	".sh":   "shellscript",
	".ts":   "typescript",
	".tsx":  "typescriptreact",
	".zig":  "zig",
}

// languageID guesses the LSP language identifier of a file from its
// extension.
func languageID(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	if id, ok := languageIDs[ext]; ok {
		return id
	}
	return strings.TrimPrefix(ext, ".")
}
