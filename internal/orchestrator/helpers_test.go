package orchestrator

import (
	"context"
	"sync"

	"github.com/dusk-indust/formcrew/internal/agent"
	"github.com/dusk-indust/formcrew/internal/events"
	"github.com/dusk-indust/formcrew/internal/llm"
	"github.com/dusk-indust/formcrew/internal/store"
)

func executor(fn func(ctx context.Context, req llm.Request) (string, error)) *agent.Executor {
	return agent.NewExecutor(llm.GeneratorFunc(fn), agent.Hooks{})
}

func sections(titles ...string) []Section {
	out := make([]Section, len(titles))
	for i, t := range titles {
		out[i] = Section{
			TOC:   TOC{Title: t, Order: i + 1},
			Agent: SectionAgent{AgentID: "a-1", Name: "분석가", Role: "analyst"},
			Task:  agent.Task{Description: "write " + t, ExpectedOutput: "markdown"},
		}
	}
	return out
}

type saved struct {
	id      string
	payload map[string]any
	final   bool
}

type fakeStore struct {
	mu       sync.Mutex
	saves    []saved
	siblings *store.Siblings
	saveErr  error
}

func (s *fakeStore) SaveResult(_ context.Context, id string, payload any, final bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil && final {
		return s.saveErr
	}
	s.saves = append(s.saves, saved{id: id, payload: payload.(map[string]any), final: final})
	return nil
}

func (s *fakeStore) ReadCompletedSiblings(context.Context, string) (*store.Siblings, error) {
	if s.siblings == nil {
		return &store.Siblings{}, nil
	}
	return s.siblings, nil
}

func (s *fakeStore) finals() []saved {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []saved
	for _, sv := range s.saves {
		if sv.final {
			out = append(out, sv)
		}
	}
	return out
}

func (s *fakeStore) checkpoints() []saved {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []saved
	for _, sv := range s.saves {
		if !sv.final {
			out = append(out, sv)
		}
	}
	return out
}

type recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recorder) Emit(_ context.Context, e events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) all() []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]events.Event(nil), r.events...)
}
