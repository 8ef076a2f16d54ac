package mcpserver

import (
	"context"
	"errors"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/SAO-Estrategia/Asistente-Bellachik/internal/tools"
)

func connect(t *testing.T, table *tools.Table) *mcp.ClientSession {
	t.Helper()
	ctx := context.Background()

	server, err := New(table, zaptest.NewLogger(t))
	require.NoError(t, err)

	serverTransport, clientTransport := mcp.NewInMemoryTransports()
	serverSession, err := server.Connect(ctx, serverTransport)
	require.NoError(t, err)
	t.Cleanup(func() { _ = serverSession.Close() })

	client := mcp.NewClient(&mcp.Implementation{Name: "bellachik-test", Version: "1.0.0"}, nil)
	session, err := client.Connect(ctx, clientTransport)
	require.NoError(t, err)
	t.Cleanup(func() { _ = session.Close() })
	return session
}

func text(res *mcp.CallToolResult) string {
	var out string
	for _, c := range res.Content {
		if tc, ok := c.(*mcp.TextContent); ok {
			out += tc.Text
		}
	}
	return out
}

func TestListTools(t *testing.T) {
	session := connect(t, tools.NewTable(tools.Adapters{}))

	res, err := session.ListTools(context.Background(), &mcp.ListToolsParams{})
	require.NoError(t, err)
	require.Len(t, res.Tools, 1)
	assert.Equal(t, "consultar_cliente", res.Tools[0].Name)
	require.NotNil(t, res.Tools[0].InputSchema)
	assert.Equal(t, "object", res.Tools[0].InputSchema.Type)
}

func TestCallTool_EmptyProfile(t *testing.T) {
	session := connect(t, tools.NewTable(tools.Adapters{}))

	res, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      "consultar_cliente",
		Arguments: map[string]any{},
	})
	require.NoError(t, err)
	assert.False(t, res.IsError)
	assert.Contains(t, text(res), "No se encontraron datos suficientes del cliente para mostrar.")
}

func TestCallTool_FailureIsToolError(t *testing.T) {
	table := tools.NewTable(tools.Adapters{})
	require.NoError(t, table.Register(tools.Definition{Name: "falla"}, func(context.Context, tools.Call) (any, error) {
		return nil, errors.New("servicio no disponible")
	}))
	session := connect(t, table)

	res, err := session.CallTool(context.Background(), &mcp.CallToolParams{Name: "falla", Arguments: map[string]any{}})
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.JSONEq(t, `{"error":"servicio no disponible"}`, text(res))
}
