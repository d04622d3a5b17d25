package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/zeusync/apischema/internal/core/schema/decoder"
)

func newDecodeCmd(c *cli) *cobra.Command {
	var (
		entity       string
		omitDefaults bool
		batch        bool
	)

	cmd := &cobra.Command{
		Use:   "decode --entity NAME [payload.json|-]",
		Short: "Decode a JSON payload and print it normalized",
		Long: `Decode a JSON payload against an entity schema.

The normalized entity is printed to stdout with defaults filled in, unknown
keys dropped and keys in schema order. Unknown keys are reported on stderr
when strict mode is on. With --batch the payload must be a JSON array and
every element is decoded in parallel.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.setup(cmd, ""); err != nil {
				return err
			}
			defer c.close()

			data, err := readPayload(cmd, args)
			if err != nil {
				return err
			}

			dec := c.app.Holder.Decoder()
			if !batch {
				res, err := dec.DecodeJSON(entity, data)
				if err != nil {
					return err
				}
				return writeResult(cmd, res, omitDefaults)
			}

			raw, err := decoder.ParseJSON(data)
			if err != nil {
				return fmt.Errorf("%w: %w", decoder.ErrInvalidJSON, err)
			}
			items, ok := raw.([]any)
			if !ok {
				return errors.New("--batch expects a JSON array")
			}
			results, err := dec.DecodeAll(cmd.Context(), entity, items)
			if err != nil {
				return err
			}
			for _, res := range results {
				if err = writeResult(cmd, res, omitDefaults); err != nil {
					return err
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&entity, "entity", "e", "", "entity schema to decode against")
	cmd.Flags().BoolVar(&omitDefaults, "omit-defaults", false, "leave out fields the payload did not carry")
	cmd.Flags().BoolVar(&batch, "batch", false, "decode every element of a JSON array")
	_ = cmd.MarkFlagRequired("entity")
	return cmd
}

func readPayload(cmd *cobra.Command, args []string) ([]byte, error) {
	if len(args) == 0 || args[0] == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	return os.ReadFile(args[0])
}

func writeResult(cmd *cobra.Command, res *decoder.Result, omitDefaults bool) error {
	for _, w := range res.Warnings {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s\n", w)
	}

	var v any = res.Entity
	if omitDefaults {
		v = decoder.Encode(res.Entity, decoder.OmitDefaults())
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}
