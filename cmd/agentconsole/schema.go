package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/invopop/jsonschema"
	"github.com/spf13/cobra"

	"github.com/bazelment/agentconsole/event"
)

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Print the JSON Schema of a stream data frame",
	RunE: func(cmd *cobra.Command, args []string) error {
		return writeSchema(cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(schemaCmd)
}

func writeSchema(w io.Writer) error {
	reflector := &jsonschema.Reflector{
		DoNotReference: true,
		ExpandedStruct: true,
	}
	schema := reflector.Reflect(&event.WireEnvelope{})
	schema.Title = "Agent stream frame"

	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode schema: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}
