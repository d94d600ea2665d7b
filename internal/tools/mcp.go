package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/dusk-indust/formcrew/internal/config"
	"github.com/dusk-indust/formcrew/internal/llm"
)

// TransportFunc builds the client transport for a configured server.
type TransportFunc func(server config.MCPServerConfig) mcp.Transport

// StreamableTransport connects over streamable HTTP.
func StreamableTransport(server config.MCPServerConfig) mcp.Transport {
	return &mcp.StreamableClientTransport{Endpoint: server.Endpoint}
}

// MCPToolset exposes the tools of configured MCP servers. Sessions are
// opened on first use and shared by every flow in the process.
type MCPToolset struct {
	servers   []config.MCPServerConfig
	transport TransportFunc
	client    *mcp.Client
	log       *zap.Logger

	mu       sync.Mutex
	sessions map[string]*serverTools
}

type serverTools struct {
	session *mcp.ClientSession
	tools   []*mcp.Tool
}

// NewMCPToolset creates a toolset over servers. transport defaults to
// StreamableTransport.
func NewMCPToolset(servers []config.MCPServerConfig, transport TransportFunc, log *zap.Logger) *MCPToolset {
	if transport == nil {
		transport = StreamableTransport
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &MCPToolset{
		servers:   servers,
		transport: transport,
		client:    mcp.NewClient(&mcp.Implementation{Name: "formcrew", Version: "dev"}, nil),
		log:       log,
		sessions:  make(map[string]*serverTools),
	}
}

// Resolve returns every tool of the server called name, or the single tool
// called name on any server. Unreachable servers are skipped.
func (m *MCPToolset) Resolve(ctx context.Context, name string) ([]llm.Tool, error) {
	var errs []error
	for _, srv := range m.servers {
		st, err := m.connect(ctx, srv)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if strings.EqualFold(srv.Name, name) {
			out := make([]llm.Tool, 0, len(st.tools))
			for _, t := range st.tools {
				out = append(out, &mcpTool{session: st.session, tool: t})
			}
			return out, nil
		}
		for _, t := range st.tools {
			if strings.EqualFold(t.Name, name) {
				return []llm.Tool{&mcpTool{session: st.session, tool: t}}, nil
			}
		}
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return nil, nil
}

func (m *MCPToolset) connect(ctx context.Context, srv config.MCPServerConfig) (*serverTools, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if st, ok := m.sessions[srv.Name]; ok {
		return st, nil
	}
	session, err := m.client.Connect(ctx, m.transport(srv), nil)
	if err != nil {
		return nil, fmt.Errorf("tools: connect mcp server %s: %w", srv.Name, err)
	}
	res, err := session.ListTools(ctx, &mcp.ListToolsParams{})
	if err != nil {
		session.Close()
		return nil, fmt.Errorf("tools: list tools of %s: %w", srv.Name, err)
	}
	st := &serverTools{session: session, tools: res.Tools}
	m.sessions[srv.Name] = st
	m.log.Info("mcp server connected", zap.String("server", srv.Name), zap.Int("tools", len(res.Tools)))
	return st, nil
}

// Close ends every open session.
func (m *MCPToolset) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var errs []error
	for name, st := range m.sessions {
		if err := st.session.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", name, err))
		}
		delete(m.sessions, name)
	}
	return errors.Join(errs...)
}

type mcpTool struct {
	session *mcp.ClientSession
	tool    *mcp.Tool
}

func (t *mcpTool) Name() string        { return t.tool.Name }
func (t *mcpTool) Description() string { return t.tool.Description }

func (t *mcpTool) Call(ctx context.Context, query string) (string, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return "", ErrEmptyQuery
	}
	res, err := t.session.CallTool(ctx, &mcp.CallToolParams{
		Name:      t.tool.Name,
		Arguments: map[string]any{"query": query},
	})
	if err != nil {
		return "", fmt.Errorf("tools: call %s: %w", t.tool.Name, err)
	}
	var sb strings.Builder
	for _, c := range res.Content {
		if tc, ok := c.(*mcp.TextContent); ok {
			if sb.Len() > 0 {
				sb.WriteString("\n")
			}
			sb.WriteString(tc.Text)
		}
	}
	if res.IsError {
		return "", fmt.Errorf("tools: %s failed: %s", t.tool.Name, sb.String())
	}
	return sb.String(), nil
}
