package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/kasuganosora/sparqlexec/pkg/config"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

// Version is overridden at build time with -ldflags.
var Version = "1.0.0"

// errQueryFailed signals a failure outcome that has already been reported.
var errQueryFailed = errors.New("query failed")

type rootOptions struct {
	envFile string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		if !errors.Is(err, errQueryFailed) {
			pterm.Error.WithWriter(os.Stderr).Println(err)
		}
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:           "sparqlexec",
		Short:         "MCP server exposing a SPARQL endpoint as the execute_sparql tool",
		Long:          "sparqlexec registers one MCP tool, execute_sparql, that forwards a query to a SPARQL HTTP endpoint and returns its JSON result.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&opts.envFile, "env-file", config.DefaultEnvFile, "dotenv file loaded before reading the environment (empty to skip)")
	pf.String("endpoint", "", "SPARQL endpoint URL (overrides ENDPOINT_URL)")
	pf.Bool("require-credentials", false, "fail unless both USERNAME and PASSWORD are set")
	pf.String("log-level", "info", "log level: error, warn, info or debug")

	root.AddCommand(newServeCmd(opts), newQueryCmd(opts), newVersionCmd())
	return root
}

func loadConfig(cmd *cobra.Command, opts *rootOptions) (*config.Config, error) {
	return config.Load(config.Options{
		EnvFile: opts.envFile,
		Flags:   cmd.Flags(),
	})
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "sparqlexec %s\n", Version)
		},
	}
}
