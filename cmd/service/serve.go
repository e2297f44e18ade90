package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/kasuganosora/sparqlexec/pkg/config"
	"github.com/kasuganosora/sparqlexec/pkg/logger"
	"github.com/kasuganosora/sparqlexec/pkg/security"
	"github.com/kasuganosora/sparqlexec/pkg/sparql"
	mcpserver "github.com/kasuganosora/sparqlexec/server/mcp"
	"github.com/spf13/cobra"
)

const auditBufferSize = 10000

func newServeCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the execute_sparql tool over MCP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, opts)
			if err != nil {
				return err
			}

			log := logger.New(cfg.LogLevel())
			log.Info("加载配置: endpoint=%s, transport=%s, credentials=%t", cfg.Endpoint.URL, cfg.MCP.Transport, cfg.Endpoint.HasCredentials())

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			srv := mcpserver.NewServer(cfg, sparql.NewExecutor(), log, security.NewAuditLogger(auditBufferSize))
			if err := srv.Start(ctx); err != nil {
				log.Error("MCP 服务器退出: %v", err)
				return err
			}
			log.Info("服务器停止")
			return nil
		},
	}

	f := cmd.Flags()
	f.String("transport", config.TransportStdio, "MCP transport: stdio or http")
	f.String("host", "127.0.0.1", "listen host for the http transport")
	f.Int("port", 8080, "listen port for the http transport")
	return cmd
}
