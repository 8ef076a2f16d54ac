// tools-mcp-server serves the assistant's tools on stdin/stdout so any MCP
// client can call them.
package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/SAO-Estrategia/Asistente-Bellachik/internal/bootstrap"
	"github.com/SAO-Estrategia/Asistente-Bellachik/internal/config"
	"github.com/SAO-Estrategia/Asistente-Bellachik/internal/logger"
	"github.com/SAO-Estrategia/Asistente-Bellachik/internal/mcpserver"
	"github.com/SAO-Estrategia/Asistente-Bellachik/internal/tools"
)

func main() {
	if err := godotenv.Load(".env"); err != nil {
		log.Printf("Warning: .env file not found: %v", err)
	}

	svcCfg, err := config.LoadServices()
	if err != nil {
		log.Fatalf("failed to parse config: %v", err)
	}

	// zap writes to stderr; stdout carries the protocol
	zl := logger.Must("info", "console")
	defer func() { _ = zl.Sync() }()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	svc := bootstrap.Build(ctx, svcCfg, zl)
	table := tools.NewTable(svc.Adapters())

	server, err := mcpserver.New(table, zl)
	if err != nil {
		zl.Fatal("mcp server", zap.Error(err))
	}
	zl.Info("serving tools over stdio", zap.Strings("tools", table.Names()))
	if err := mcpserver.ServeStdio(ctx, server); err != nil {
		zl.Fatal("mcp server stopped", zap.Error(err))
	}
}
