// Copyright © 2018 The ELPS authors

package cmd

import (
	"github.com/luthersystems/sighelp/lspclient"
	"github.com/luthersystems/sighelp/repl"
	"github.com/spf13/cobra"
)

const replPrompt = "> "

// ReplCommand creates the "repl" cobra command.
func ReplCommand(opts ...Option) *cobra.Command {
	var serverCmd string

	cmd := &cobra.Command{
		Use:   "repl [flags] FILE",
		Short: "Type into a buffer and watch signature help follow",
		Long: `Open FILE (an empty buffer if it does not exist) with the cursor at its
end and read lines from the terminal. Each line is typed into the buffer
one character at a time, so trigger characters such as "(" and "," open
and update the popup the way they would in an editor.

Commands:
  :invoke       request signature help now
  :close        leave insert mode, closing the popup
  :goto L C     move the cursor to line L, column C (1-based)
  :event JSON   deliver a trigger event, e.g. {"kind":"contentChange"}
  :buffer       print the buffer
  :quit         exit

Example session:
  > fmt.Printf(
     func Printf(format string, a ...any) (n int, err error)
   fmt.Printf(
  > "%d",
     func Printf(format string, a ...any) (n int, err error)
   fmt.Printf("%d",`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
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
			wb, err := newWorkbench(ctx, cfg, log, out, args[0], workbenchOptions{
				column:       len(replPrompt),
				allowMissing: true,
			})
			if err != nil {
				return err
			}
			defer wb.shutdown()

			wb.buf.SetCursorEnd()
			if err := wb.manager.EnableAutoTrigger(ctx, wb.buf.ID, cfg.Timeout); err != nil {
				return err
			}
			return repl.Run(ctx, &repl.Env{
				Store:    wb.store,
				Glue:     wb.glue,
				Manager:  wb.manager,
				Terminal: wb.term,
				Buffer:   wb.buf,
				Timeout:  cfg.Timeout,
			}, replPrompt, repl.WithStdout(out))
		},
	}

	cmd.Flags().StringVar(&serverCmd, "server-cmd", "",
		"Language server command line to use in addition to configured servers")

	return cmd
}

func init() {
	rootCmd.AddCommand(ReplCommand())
}
