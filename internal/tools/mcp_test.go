package tools

import (
	"context"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dusk-indust/formcrew/internal/config"
	"github.com/dusk-indust/formcrew/internal/memory"
)

type searchInput struct {
	Query string `json:"query"`
}

func newSearchServer() *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{Name: "search", Version: "test"}, nil)
	mcp.AddTool(server, &mcp.Tool{Name: "web_search", Description: "웹 검색"},
		func(_ context.Context, _ *mcp.CallToolRequest, in searchInput) (*mcp.CallToolResult, any, error) {
			return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: "결과: " + in.Query}}}, nil, nil
		})
	mcp.AddTool(server, &mcp.Tool{Name: "news_search", Description: "뉴스 검색"},
		func(_ context.Context, _ *mcp.CallToolRequest, in searchInput) (*mcp.CallToolResult, any, error) {
			return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: "뉴스: " + in.Query}}}, nil, nil
		})
	return server
}

// inMemoryTransport connects a fresh server instance per session.
func inMemoryTransport(t *testing.T) TransportFunc {
	t.Helper()
	return func(config.MCPServerConfig) mcp.Transport {
		st, ct := mcp.NewInMemoryTransports()
		_, err := newSearchServer().Connect(context.Background(), st, nil)
		require.NoError(t, err)
		return ct
	}
}

func TestMCPToolset_Resolve(t *testing.T) {
	ts := NewMCPToolset([]config.MCPServerConfig{{Name: "search", Endpoint: "mem://"}}, inMemoryTransport(t), nil)
	t.Cleanup(func() { _ = ts.Close() })
	ctx := context.Background()

	byServer, err := ts.Resolve(ctx, "search")
	require.NoError(t, err)
	assert.Len(t, byServer, 2)

	single, err := ts.Resolve(ctx, "web_search")
	require.NoError(t, err)
	require.Len(t, single, 1)
	assert.Equal(t, "web_search", single[0].Name())

	out, err := single[0].Call(ctx, "금리")
	require.NoError(t, err)
	assert.Equal(t, "결과: 금리", out)

	_, err = single[0].Call(ctx, "")
	assert.ErrorIs(t, err, ErrEmptyQuery)

	missing, err := ts.Resolve(ctx, "calendar")
	require.NoError(t, err)
	assert.Empty(t, missing)
}

func TestLoader_Load(t *testing.T) {
	mcpTools := NewMCPToolset([]config.MCPServerConfig{{Name: "search", Endpoint: "mem://"}}, inMemoryTransport(t), nil)
	t.Cleanup(func() { _ = mcpTools.Close() })

	loader := NewLoader(
		&KnowledgeConfig{Store: memory.NewMemStore(), Threshold: 0.5, MinResults: 5},
		NewDocumentSearch(config.DocumentsConfig{}),
		mcpTools,
		nil,
	)

	got := loader.Load(context.Background(), []string{"mem0", " WEB_SEARCH ", "web_search", "unknown_tool", ""}, Scope{TenantID: "t", AgentID: "a"})
	names := make([]string, len(got))
	for i, tool := range got {
		names[i] = tool.Name()
	}
	assert.Equal(t, []string{"mem0", "memento", "web_search"}, names)
}

func TestLoader_WithoutMCP(t *testing.T) {
	loader := NewLoader(&KnowledgeConfig{Store: memory.NewMemStore()}, NewDocumentSearch(config.DocumentsConfig{}), nil, nil)
	got := loader.Load(context.Background(), []string{"web_search"}, Scope{})
	assert.Len(t, got, 2)
}

func TestParseNames(t *testing.T) {
	assert.Equal(t, []string{"mem0", "perplexity"}, ParseNames(" mem0, ,perplexity "))
	assert.Nil(t, ParseNames(""))
}
