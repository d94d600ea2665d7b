// Package tools provides the search tools bound to agent generation
// requests: personal knowledge (mem0), company documents (memento) and
// tools exposed by configured MCP servers.
package tools

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/dusk-indust/formcrew/internal/llm"
)

// ErrEmptyQuery is returned when a tool is called without a query.
var ErrEmptyQuery = errors.New("tools: empty query")

// Names of the tools every agent receives.
const (
	KnowledgeToolName = "mem0"
	DocumentToolName  = "memento"
)

// Scope identifies whose knowledge and which tenant's documents a toolset
// reads.
type Scope struct {
	TenantID string
	AgentID  string
}

// Loader resolves tool names into bound tools.
type Loader struct {
	knowledge *KnowledgeConfig
	docs      *DocumentSearch
	mcp       *MCPToolset
	log       *zap.Logger
}

// NewLoader creates a Loader. mcp may be nil when no MCP servers are configured.
func NewLoader(knowledge *KnowledgeConfig, docs *DocumentSearch, mcp *MCPToolset, log *zap.Logger) *Loader {
	if log == nil {
		log = zap.NewNop()
	}
	return &Loader{knowledge: knowledge, docs: docs, mcp: mcp, log: log}
}

// Load returns mem0 and memento followed by the requested extra tools. A
// name matching a configured MCP server yields all of that server's tools;
// a name matching a single MCP tool yields that tool. Anything else is
// dropped with a warning.
func (l *Loader) Load(ctx context.Context, names []string, scope Scope) []llm.Tool {
	out := []llm.Tool{
		l.knowledge.For(scope.AgentID),
		l.docs.For(scope.TenantID),
	}
	seen := map[string]bool{KnowledgeToolName: true, DocumentToolName: true}
	requested := map[string]bool{}
	for _, raw := range names {
		name := strings.ToLower(strings.TrimSpace(raw))
		if name == "" || seen[name] || requested[name] {
			continue
		}
		requested[name] = true

		if l.mcp == nil {
			l.log.Warn("unknown tool dropped", zap.String("tool", name))
			continue
		}
		resolved, err := l.mcp.Resolve(ctx, name)
		if err != nil {
			l.log.Warn("mcp tool lookup failed", zap.String("tool", name), zap.Error(err))
			continue
		}
		if len(resolved) == 0 {
			l.log.Warn("unknown tool dropped", zap.String("tool", name))
			continue
		}
		for _, t := range resolved {
			if !seen[t.Name()] {
				seen[t.Name()] = true
				out = append(out, t)
			}
		}
	}
	return out
}

// ParseNames splits a comma separated tool list.
func ParseNames(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
