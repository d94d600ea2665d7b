package orchestrator

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dusk-indust/formcrew/internal/llm"
)

// titleOf finds which of titles a section request is for.
func titleOf(req llm.Request, titles ...string) string {
	for _, t := range titles {
		if strings.Contains(req.Task, "'"+t+"'") {
			return t
		}
	}
	return ""
}

func TestRunner_MergesInPlannedOrderAsSectionsComplete(t *testing.T) {
	titles := []string{"Intro", "Body", "Conclusion"}
	gates := map[string]chan struct{}{}
	for _, ti := range titles {
		gates[ti] = make(chan struct{})
	}
	exec := executor(func(ctx context.Context, req llm.Request) (string, error) {
		title := titleOf(req, titles...)
		select {
		case <-gates[title]:
		case <-ctx.Done():
			return "", ctx.Err()
		}
		return title[:1], nil
	})

	checkpoints := make(chan string, 3)
	done := make(chan map[string]string, 1)
	go func() {
		contents, err := NewRunner(exec, nil, 0, nil).Run(context.Background(), RunRequest{
			ReportKey: "r1",
			Sections:  sections(titles...),
		}, func(_ context.Context, merged string) { checkpoints <- merged })
		assert.NoError(t, err)
		done <- contents
	}()

	want := []struct{ release, merged string }{
		{"Body", "B"},
		{"Conclusion", "B\n\n---\n\nC"},
		{"Intro", "I\n\n---\n\nB\n\n---\n\nC"},
	}
	for _, step := range want {
		close(gates[step.release])
		select {
		case got := <-checkpoints:
			assert.Equal(t, step.merged, got)
		case <-time.After(5 * time.Second):
			t.Fatalf("no checkpoint after %s completed", step.release)
		}
	}

	contents := <-done
	assert.Equal(t, map[string]string{"Intro": "I", "Body": "B", "Conclusion": "C"}, contents)
}

func TestRunner_FailedSectionGetsPlaceholder(t *testing.T) {
	exec := executor(func(_ context.Context, req llm.Request) (string, error) {
		if titleOf(req, "Intro", "Body") == "Body" {
			return "", errors.New("quota exceeded")
		}
		return "intro text", nil
	})

	var merged []string
	var mu sync.Mutex
	contents, err := NewRunner(exec, nil, 1, nil).Run(context.Background(), RunRequest{
		ReportKey: "r1",
		Sections:  sections("Intro", "Body"),
	}, func(_ context.Context, m string) {
		mu.Lock()
		merged = append(merged, m)
		mu.Unlock()
	})
	require.NoError(t, err)
	assert.Equal(t, "intro text", contents["Intro"])
	assert.True(t, strings.HasPrefix(contents["Body"], FailurePrefix))
	assert.Contains(t, contents["Body"], "quota exceeded")
	require.Len(t, merged, 2)
	assert.True(t, strings.HasPrefix(merged[1], "intro text\n\n---\n\n"+FailurePrefix))
}

func TestRunner_RespectsLimit(t *testing.T) {
	var running, peak atomic.Int32
	exec := executor(func(context.Context, llm.Request) (string, error) {
		n := running.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		running.Add(-1)
		return "x", nil
	})

	contents, err := NewRunner(exec, nil, 2, nil).Run(context.Background(), RunRequest{
		ReportKey: "r1",
		Sections:  sections("a", "b", "c", "d", "e"),
	}, nil)
	require.NoError(t, err)
	assert.Len(t, contents, 5)
	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestRunner_CancellationStopsUnstartedSections(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls atomic.Int32
	exec := executor(func(context.Context, llm.Request) (string, error) {
		calls.Add(1)
		cancel()
		return "first", nil
	})

	contents, err := NewRunner(exec, nil, 1, nil).Run(ctx, RunRequest{
		ReportKey: "r1",
		Sections:  sections("a", "b", "c"),
	}, nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, map[string]string{"a": "first"}, contents)
}
