package main

import (
	"errors"
	"io/fs"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/zeusync/apischema/internal/config"
	"github.com/zeusync/apischema/internal/injector"
)

// cli carries state shared by subcommands of one invocation.
type cli struct {
	cfg *config.Config
	app *injector.App

	envFile    string
	schemaFile string
	logLevel   string
	validation string
	maxDepth   int
	strict     bool
	noCatalog  bool
}

func newRootCmd() *cobra.Command {
	c := &cli{}

	root := &cobra.Command{
		Use:   "schemactl",
		Short: "Inspect API entity schemas and decode payloads against them",
		Long: `schemactl works with the built-in Discord catalog and optional schema
description files (YAML or JSON).

Examples:
  schemactl lint schemas.yaml
  schemactl list -o yaml
  schemactl decode --entity Message payload.json`,
		SilenceUsage: true,
	}

	flags := root.PersistentFlags()
	flags.StringVar(&c.envFile, "env-file", ".env", "dotenv file loaded before reading SCHEMACTL_* variables")
	flags.StringVarP(&c.schemaFile, "schema", "s", "", "schema description file (overrides SCHEMACTL_SCHEMA_FILE)")
	flags.StringVar(&c.logLevel, "log-level", "", "debug, info, warn, error or silent")
	flags.StringVar(&c.validation, "validation", "", "reference validation: lazy or strict")
	flags.IntVar(&c.maxDepth, "max-depth", 0, "maximum nesting depth of a payload")
	flags.BoolVar(&c.strict, "strict", false, "report keys the schema does not describe")
	flags.BoolVar(&c.noCatalog, "no-catalog", false, "do not load the built-in catalog")

	root.AddCommand(
		newLintCmd(c),
		newListCmd(c),
		newDecodeCmd(c),
		newWatchCmd(c),
		newVersionCmd(),
	)
	return root
}

// setup loads configuration, applies flag overrides and wires the app.
// schemaFile, when not empty, takes precedence over everything else.
func (c *cli) setup(cmd *cobra.Command, schemaFile string) error {
	if err := godotenv.Load(c.envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("schema") {
		cfg.SchemaFile = c.schemaFile
	}
	if schemaFile != "" {
		cfg.SchemaFile = schemaFile
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = c.logLevel
	}
	if flags.Changed("validation") {
		cfg.Validation = c.validation
	}
	if flags.Changed("max-depth") {
		cfg.MaxDepth = c.maxDepth
	}
	if flags.Changed("strict") {
		cfg.Strict = c.strict
	}
	if flags.Changed("no-catalog") {
		cfg.Catalog = !c.noCatalog
	}
	if err = cfg.Validate(); err != nil {
		return err
	}

	app, err := injector.InitializeApp(cfg, prometheus.NewRegistry())
	if err != nil {
		return err
	}
	c.cfg = cfg
	c.app = app
	return nil
}

func (c *cli) close() {
	if c.app == nil {
		return
	}
	c.app.Holder.Stop()
	_ = c.app.Logger.Sync()
}
