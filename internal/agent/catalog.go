package agent

import (
	"context"
	"strings"

	"go.uber.org/zap"
)

// Source lists the agents known to the directory.
type Source interface {
	FetchAgents(ctx context.Context) ([]Profile, error)
}

// Catalog is the agent directory with fallback behavior.
type Catalog struct {
	src Source
	log *zap.Logger
}

// NewCatalog creates a Catalog over src. src may be nil.
func NewCatalog(src Source, log *zap.Logger) *Catalog {
	if log == nil {
		log = zap.NewNop()
	}
	return &Catalog{src: src, log: log}
}

// All returns every complete agent (name, role, goal and persona set). A
// lookup failure or an empty directory yields the fallback roster. Agents
// without tools get "mem0".
func (c *Catalog) All(ctx context.Context) []Profile {
	if c == nil || c.src == nil {
		return FallbackRoster()
	}
	agents, err := c.src.FetchAgents(ctx)
	if err != nil {
		c.log.Warn("fetch agents failed, using fallback roster", zap.Error(err))
		return FallbackRoster()
	}
	out := make([]Profile, 0, len(agents))
	for _, a := range agents {
		if blank(a.Name) || blank(a.Role) || blank(a.Goal) || blank(a.Persona) {
			continue
		}
		if blank(a.Tools) {
			a.Tools = "mem0"
		}
		out = append(out, a)
	}
	if len(out) == 0 {
		c.log.Info("no agents in directory, using fallback roster")
		return FallbackRoster()
	}
	return out
}

// Roster picks prioritized agents when present, else the catalog.
func (c *Catalog) Roster(ctx context.Context, prioritized []Profile) []Profile {
	if len(prioritized) > 0 {
		return prioritized
	}
	return c.All(ctx)
}

func blank(s string) bool { return strings.TrimSpace(s) == "" }
