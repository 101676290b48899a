// Copyright © 2018 The ELPS authors

package cmd

import (
	"fmt"
	"os"

	"github.com/luthersystems/sighelp/sighelp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "sighelp",
	Short: "LSP signature help in the terminal",
	Long: `sighelp is a language server client that shows signature help: the
signature of the function being called, with the parameter under the
cursor highlighted.

Getting started:
  sighelp show main.go 12 17     Show signature help at line 12, column 17
  sighelp repl main.go           Type into a buffer and watch the popup follow
  sighelp capabilities           Print the client capabilities sent to servers

Language servers are configured in $HOME/.sighelp.yaml:

  timeout: 5s
  color: auto
  width: 0
  documentation: false
  servers:
    - name: gopls
      command: gopls
      filetypes: [go]

Every key can also be set with a SIGHELP_ environment variable, for example
SIGHELP_TIMEOUT=2s.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default is $HOME/.sighelp.yaml)")
	flags.String("color", "auto", `Control colored output: "auto", "always", or "never".`)
	flags.Duration("timeout", sighelp.DefaultTimeout, "Timeout for signature help requests.")
	flags.Int("width", 0, "Truncate popup lines to this many columns (0 means no limit).")
	flags.Bool("documentation", false, "Show the signature's documentation under its label.")
	flags.BoolP("verbose", "v", false, "Log debug output to stderr.")
	for _, key := range []string{keyColor, keyTimeout, keyWidth, keyDocumentation, keyVerbose} {
		_ = viper.BindPFlag(key, flags.Lookup(key))
	}
	setDefaults(viper.GetViper())
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		// Use config file from the flag.
		viper.SetConfigFile(cfgFile)
	} else {
		// Find home directory.
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}

		// Search config in home directory with name ".sighelp" (without extension).
		viper.AddConfigPath(home)
		viper.SetConfigName(".sighelp")
	}

	viper.SetEnvPrefix("SIGHELP")
	viper.AutomaticEnv() // read in environment variables that match

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err == nil && viper.GetBool(keyVerbose) {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}
