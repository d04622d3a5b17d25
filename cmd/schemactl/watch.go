package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/zeusync/apischema/internal/core/schema/watch"
)

func newWatchCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "watch [file]",
		Short: "Lint a schema file every time it changes",
		Long: `Watch a schema description file and reload it on every write, or on
SIGHUP. Each successful reload is linted; failed reloads keep the previous
schemas and are logged.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var file string
			if len(args) == 1 {
				file = args[0]
			}
			if err := c.setup(cmd, file); err != nil {
				return err
			}
			defer c.close()
			if c.cfg.SchemaFile == "" {
				return errors.New("watch needs a schema file")
			}

			holder := c.app.Holder
			holder.OnChange(func(*watch.Snapshot) {
				if err := c.lint(cmd); err != nil {
					fmt.Fprintln(cmd.ErrOrStderr(), err)
				}
			})
			if err := c.lint(cmd); err != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), err)
			}
			if err := holder.WatchFile(); err != nil {
				return err
			}
			holder.WatchSignals()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			<-ctx.Done()
			return nil
		},
	}
}
