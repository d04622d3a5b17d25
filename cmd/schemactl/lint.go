package main

import (
	"fmt"
	"maps"
	"slices"

	"github.com/spf13/cobra"

	"github.com/zeusync/apischema/pkg/sequence"
)

func newLintCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "lint [file]",
		Short: "Validate a schema description file",
		Long: `Validate a schema description file together with the catalog.

Checks:
  - YAML or JSON syntax and document structure
  - field types parse and defaults match their kinds
  - every referenced entity and enum resolves
  - deprecated fields are listed`,
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
			return c.lint(cmd)
		},
	}
}

func (c *cli) lint(cmd *cobra.Command) error {
	out := cmd.OutOrStdout()
	reg := c.app.Holder.Registry()

	source := "catalog"
	if c.cfg.SchemaFile != "" {
		source = c.cfg.SchemaFile
	}
	entities := sequence.FromSeq(reg.All()).Count()
	enums := sequence.FromSeq(reg.Enums()).Count()
	fmt.Fprintf(out, "%s: %d entities, %d enums, fingerprint %016x\n", source, entities, enums, reg.Fingerprint())

	deprecated := reg.Deprecated()
	for _, name := range slices.Sorted(maps.Keys(deprecated)) {
		for _, field := range deprecated[name] {
			fmt.Fprintf(out, "  deprecated: %s.%s\n", name, field)
		}
	}

	dangling := reg.Dangling()
	for _, d := range dangling {
		fmt.Fprintf(out, "  unresolved: %s\n", d)
	}
	if len(dangling) > 0 {
		return fmt.Errorf("%d unresolved references", len(dangling))
	}

	fmt.Fprintln(out, "ok")
	return nil
}
