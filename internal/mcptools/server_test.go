package mcptools

import (
	"context"
	"encoding/json"
	"sort"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupServerClient wires an MCP server and client together using in-memory
// transports.
func setupServerClient(t *testing.T, svc *Service) *mcp.ClientSession {
	t.Helper()

	server := NewServer(svc)
	st, ct := mcp.NewInMemoryTransports()
	ctx := context.Background()

	_, err := server.Connect(ctx, st, nil)
	require.NoError(t, err)

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "1.0.0"}, nil)
	session, err := client.Connect(ctx, ct, nil)
	require.NoError(t, err)
	t.Cleanup(func() { session.Close() })
	return session
}

func TestMCPListTools(t *testing.T) {
	session := setupServerClient(t, NewService(nil, nil, nil, nil))

	result, err := session.ListTools(context.Background(), &mcp.ListToolsParams{})
	require.NoError(t, err)

	names := make([]string, len(result.Tools))
	for i, tool := range result.Tools {
		names[i] = tool.Name
	}
	sort.Strings(names)
	assert.Equal(t, []string{
		"compare_report_changes",
		"extract_changes",
		"generate_feedback",
		"get_status",
		"knowledge_search",
	}, names)
}

func TestMCPExtractChanges(t *testing.T) {
	session := setupServerClient(t, NewService(nil, nil, nil, nil))

	result, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      "extract_changes",
		Arguments: ExtractChangesInput{Original: "하나\n둘", Modified: "하나\n셋"},
	})
	require.NoError(t, err)
	require.False(t, result.IsError)
	require.NotNil(t, result.StructuredContent)

	raw, err := json.Marshal(result.StructuredContent)
	require.NoError(t, err)
	var out ExtractChangesOutput
	require.NoError(t, json.Unmarshal(raw, &out))
	assert.Equal(t, []string{"셋"}, out.Changes.Insertions)
	assert.Equal(t, []string{"둘"}, out.Changes.Deletions)
}

func TestMCPGetStatus(t *testing.T) {
	session := setupServerClient(t, NewService(fakeItems{"todo-1": reviewedItem()}, nil, nil, nil))

	result, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      "get_status",
		Arguments: GetStatusInput{TodoID: "todo-1"},
	})
	require.NoError(t, err)
	require.False(t, result.IsError)

	raw, err := json.Marshal(result.StructuredContent)
	require.NoError(t, err)
	var out GetStatusOutput
	require.NoError(t, json.Unmarshal(raw, &out))
	require.Len(t, out.Items, 1)
	assert.Equal(t, "todo-1", out.Items[0].ID)
}

func TestMCPToolErrorIsReported(t *testing.T) {
	session := setupServerClient(t, NewService(fakeItems{}, nil, nil, nil))

	result, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      "get_status",
		Arguments: GetStatusInput{TodoID: "missing"},
	})
	if err != nil {
		return
	}
	assert.True(t, result.IsError)
}
