// Copyright © 2024 The ELPS authors

package cmd

import (
	"fmt"
	"strconv"

	"github.com/luthersystems/sighelp/lspclient"
	"github.com/spf13/cobra"
)

// ShowCommand creates the "show" cobra command.
func ShowCommand(opts ...Option) *cobra.Command {
	var serverCmd string

	cmd := &cobra.Command{
		Use:   "show [flags] FILE LINE COL",
		Short: "Show signature help at a position in a file",
		Long: `Start the configured language servers, open FILE, place the cursor at
LINE and COL (both 1-based, COL counts characters) and print the
signature help popup followed by the cursor line.

Examples:
  sighelp show main.go 12 17
  sighelp show --server-cmd "gopls serve" main.go 12 17
  sighelp show --color never --documentation lib.py 40 9`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			line, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("invalid line %q", args[1])
			}
			col, err := strconv.Atoi(args[2])
			if err != nil {
				return fmt.Errorf("invalid column %q", args[2])
			}

			c := newCmdConfig(opts...)
			if serverCmd != "" {
				server, err := serverFromCommand(serverCmd)
				if err != nil {
					return err
				}
				c.servers = append([]lspclient.ServerConfig{server}, c.servers...)
			}
			cfg, err := c.resolve()
			if err != nil {
				return err
			}
			log := c.logger
			if log == nil {
				log = newLogger(cmd.ErrOrStderr(), cfg.Verbose)
			}

			ctx := cmd.Context()
			out := cmd.OutOrStdout()
			wb, err := newWorkbench(ctx, cfg, log, out, args[0], workbenchOptions{})
			if err != nil {
				return err
			}
			defer wb.shutdown()

			if err := wb.moveCursor(line, col); err != nil {
				return err
			}
			if err := wb.manager.InvokeNow(ctx, cfg.Timeout); err != nil {
				return err
			}
			_, err = fmt.Fprintln(out, wb.buf.CurrentLine())
			return err
		},
	}

	cmd.Flags().StringVar(&serverCmd, "server-cmd", "",
		"Language server command line to use in addition to configured servers")

	return cmd
}

func init() {
	rootCmd.AddCommand(ShowCommand())
}
