// Package mcpserver exposes the assistant's tool table over the Model
// Context Protocol.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/SAO-Estrategia/Asistente-Bellachik/internal/tools"
)

const (
	serverName    = "asistente-bellachik-tools"
	serverVersion = "1.0.0"
)

// New registers every tool of table. Calls run with an empty customer
// profile since an MCP client has no webhook payload.
func New(table *tools.Table, log *zap.Logger) (*mcp.Server, error) {
	if log == nil {
		log = zap.NewNop()
	}
	server := mcp.NewServer(&mcp.Implementation{Name: serverName, Version: serverVersion}, nil)
	registry := table.Bind(tools.Customer{})

	for _, def := range table.Definitions() {
		schema, err := inputSchema(def)
		if err != nil {
			return nil, err
		}
		fn, ok := registry.Lookup(def.Name)
		if !ok {
			return nil, fmt.Errorf("tool %s vanished from registry", def.Name)
		}
		mcp.AddTool(server, &mcp.Tool{
			Name:        def.Name,
			Description: def.Description,
			InputSchema: schema,
		}, handler(def.Name, fn, log))
	}
	log.Info("mcp tools registered", zap.Int("count", len(table.Names())))
	return server, nil
}

func inputSchema(def tools.Definition) (*jsonschema.Schema, error) {
	raw, err := json.Marshal(def.Parameters)
	if err != nil {
		return nil, fmt.Errorf("tool %s: marshal schema: %w", def.Name, err)
	}
	var s jsonschema.Schema
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("tool %s: schema: %w", def.Name, err)
	}
	return &s, nil
}

func handler(name string, fn tools.Func, log *zap.Logger) mcp.ToolHandlerFor[map[string]any, any] {
	return func(ctx context.Context, _ *mcp.ServerSession, params *mcp.CallToolParamsFor[map[string]any]) (*mcp.CallToolResultFor[any], error) {
		args, err := json.Marshal(params.Arguments)
		if err != nil {
			return errorResult(err), nil
		}
		if params.Arguments == nil {
			args = []byte("{}")
		}

		out, err := fn(ctx, args)
		if err != nil {
			log.Warn("mcp tool failed", zap.String("tool", name), zap.Error(err))
			return errorResult(err), nil
		}
		text, err := json.Marshal(out)
		if err != nil {
			return errorResult(err), nil
		}
		return &mcp.CallToolResultFor[any]{
			Content: []mcp.Content{&mcp.TextContent{Text: string(text)}},
		}, nil
	}
}

func errorResult(err error) *mcp.CallToolResultFor[any] {
	body, _ := json.Marshal(map[string]string{"error": err.Error()})
	return &mcp.CallToolResultFor[any]{
		IsError: true,
		Content: []mcp.Content{&mcp.TextContent{Text: string(body)}},
	}
}

// ServeStdio runs server on stdin/stdout until the client disconnects or
// ctx ends.
func ServeStdio(ctx context.Context, server *mcp.Server) error {
	return server.Run(ctx, mcp.NewStdioTransport())
}
