package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/kasuganosora/sparqlexec/pkg/sparql"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

func newQueryCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "query <sparql|->",
		Short: "Run one query through the same executor the tool uses",
		Long:  "Run one SPARQL query against the configured endpoint and print the JSON the execute_sparql tool would return. Pass - to read the query from stdin.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, opts)
			if err != nil {
				return err
			}

			query := args[0]
			if query == "-" {
				data, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("read query from stdin: %w", err)
				}
				query = string(data)
			}
			if strings.TrimSpace(query) == "" {
				return fmt.Errorf("query is empty")
			}

			outcome, err := sparql.NewExecutor().Execute(cmd.Context(), cfg.Endpoint, query)
			if err != nil {
				return err
			}

			raw, err := outcome.JSON()
			if err != nil {
				return fmt.Errorf("encode result: %w", err)
			}
			var out bytes.Buffer
			if err := json.Indent(&out, raw, "", "  "); err != nil {
				return fmt.Errorf("indent result: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), out.String())

			status := pterm.Success.WithWriter(cmd.ErrOrStderr())
			if !outcome.OK() {
				pterm.Error.WithWriter(cmd.ErrOrStderr()).Printfln("%s failed: %s", outcome.Kind, outcome.Message)
				return errQueryFailed
			}
			status.Printfln("received a valid response from %s", cfg.Endpoint.URL)
			return nil
		},
	}
}
