// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 SimBridge Contributors

package main

import (
	"os"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/simbridge/simbridge/internal/config"
)

// NewSchemaCmd creates the schema subcommand.
func NewSchemaCmd() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Print the configuration file JSON Schema",
		RunE: func(cmd *cobra.Command, _ []string) error {
			schema, err := config.GenerateSchema()
			if err != nil {
				return err
			}
			if output == "" {
				_, err = cmd.OutOrStdout().Write(append(schema, '\n'))
				return err
			}
			if err := os.WriteFile(output, schema, 0o600); err != nil {
				return oops.With("path", output).Wrapf(err, "write schema")
			}
			cmd.Printf("Wrote %s\n", output)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "write the schema to a file instead of stdout")
	return cmd
}
