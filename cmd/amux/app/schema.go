// SPDX-FileCopyrightText: Copyright 2026 The agentmux Authors
// SPDX-License-Identifier: Apache-2.0

package app

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/invopop/jsonschema"
	"github.com/spf13/cobra"

	"github.com/agentmux/agentmux/pkg/config"
	"github.com/agentmux/agentmux/pkg/errors"
	"github.com/agentmux/agentmux/pkg/state"
)

var schemaOutput string

// newSchemaCmd creates the schema command
func newSchemaCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schema [config|session]",
		Short: "Generate JSON Schema for amux documents",
		Long: `Generate a JSON Schema describing an amux document type.

"config" covers the configuration file; "session" covers the persisted
session snapshots written to the state directory. The schema can be used
for IDE autocompletion and for validating documents out of band.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runSchema,
	}

	cmd.Flags().StringVarP(&schemaOutput, "output", "o", "", "Output file (default: stdout)")

	return cmd
}

func runSchema(cmd *cobra.Command, args []string) error {
	kind := "config"
	if len(args) > 0 {
		kind = args[0]
	}

	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}

	var schema *jsonschema.Schema
	switch kind {
	case "config":
		schema = reflector.Reflect(&config.Config{})
		schema.Title = "agentmux configuration"
		schema.Description = "Schema for the amux config.yaml file"
	case "session":
		schema = reflector.Reflect(&state.PersistedSession{})
		schema.Title = "agentmux session snapshot"
		schema.Description = "Schema for persisted session documents in the state directory"
	default:
		return errors.NewValidationError(fmt.Sprintf("unknown schema kind %q, expected config or session", kind), nil)
	}
	schema.Version = "https://json-schema.org/draft/2020-12/schema"

	schemaJSON, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to generate schema: %w", err)
	}

	if schemaOutput != "" {
		if err := os.WriteFile(schemaOutput, schemaJSON, 0600); err != nil {
			return fmt.Errorf("failed to write schema file: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "JSON schema written to %s\n", schemaOutput)
		return nil
	}

	fmt.Fprintln(cmd.OutOrStdout(), string(schemaJSON))
	return nil
}
