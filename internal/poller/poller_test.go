package poller

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/dusk-indust/formcrew/internal/config"
	"github.com/dusk-indust/formcrew/internal/feedback"
	"github.com/dusk-indust/formcrew/internal/store"
)

func TestMain(m *testing.M) {
	if os.Getenv("FORMCREW_HELPER_WORKER") == "1" {
		helperWorker()
		return
	}
	// genai pulls in opencensus, whose stats worker starts at init.
	goleak.VerifyTestMain(m, goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"))
}

// fakeQueue implements store.WorkQueue. Only the func fields a test sets
// are used; the rest return zero values.
type fakeQueue struct {
	claimPending    func(ctx context.Context) (*store.WorkItem, error)
	readDraftStatus func(ctx context.Context, id string) (string, error)
	claimFeedback   func(ctx context.Context) (*store.WorkItem, error)

	mu        sync.Mutex
	released  map[string]string
	feedbacks map[string]any
}

func (q *fakeQueue) ClaimPending(ctx context.Context) (*store.WorkItem, error) {
	if q.claimPending == nil {
		return nil, nil
	}
	return q.claimPending(ctx)
}

func (q *fakeQueue) ReadDraftStatus(ctx context.Context, id string) (string, error) {
	if q.readDraftStatus == nil {
		return store.DraftRunning, nil
	}
	return q.readDraftStatus(ctx, id)
}

func (q *fakeQueue) SaveResult(context.Context, string, any, bool) error { return nil }

func (q *fakeQueue) ReleaseClaim(_ context.Context, id, status string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.released == nil {
		q.released = map[string]string{}
	}
	q.released[id] = status
	return nil
}

func (q *fakeQueue) ReadCompletedSiblings(context.Context, string) (*store.Siblings, error) {
	return &store.Siblings{}, nil
}

func (q *fakeQueue) ClaimFeedback(ctx context.Context) (*store.WorkItem, error) {
	if q.claimFeedback == nil {
		return nil, nil
	}
	return q.claimFeedback(ctx)
}

func (q *fakeQueue) SaveFeedback(_ context.Context, id string, fb any) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.feedbacks == nil {
		q.feedbacks = map[string]any{}
	}
	q.feedbacks[id] = fb
	return nil
}

func (q *fakeQueue) Get(context.Context, string) (*store.WorkItem, error) {
	return nil, store.ErrNotFound
}

func (q *fakeQueue) releasedStatus(id string) string {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.released[id]
}

func once(item *store.WorkItem) func(context.Context) (*store.WorkItem, error) {
	var claimed atomic.Bool
	return func(context.Context) (*store.WorkItem, error) {
		if claimed.Swap(true) {
			return nil, nil
		}
		return item, nil
	}
}

var fastPoll = config.PollConfig{TodoInterval: 10 * time.Millisecond, CancelCheckInterval: 5 * time.Millisecond}

func TestWorkQueuePoller_NothingPending(t *testing.T) {
	runner := FlowRunnerFunc(func(context.Context, *store.WorkItem) error {
		t.Fatal("runner must not be called")
		return nil
	})
	claimed, err := NewWorkQueuePoller(&fakeQueue{}, runner, fastPoll, nil).Poll(context.Background())
	require.NoError(t, err)
	assert.False(t, claimed)
}

func TestWorkQueuePoller_Success(t *testing.T) {
	q := &fakeQueue{claimPending: once(&store.WorkItem{ID: "todo-1"})}
	var ran string
	runner := FlowRunnerFunc(func(_ context.Context, item *store.WorkItem) error {
		ran = item.ID
		return nil
	})

	claimed, err := NewWorkQueuePoller(q, runner, fastPoll, nil).Poll(context.Background())
	require.NoError(t, err)
	assert.True(t, claimed)
	assert.Equal(t, "todo-1", ran)
	assert.Empty(t, q.releasedStatus("todo-1"))
}

func TestWorkQueuePoller_FailureReleasesAsFailed(t *testing.T) {
	q := &fakeQueue{claimPending: once(&store.WorkItem{ID: "todo-1"})}
	runner := FlowRunnerFunc(func(context.Context, *store.WorkItem) error {
		return errors.New("PLAN: planner returned no JSON")
	})

	_, err := NewWorkQueuePoller(q, runner, fastPoll, nil).Poll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, store.DraftFailed, q.releasedStatus("todo-1"))
}

func TestWorkQueuePoller_UserCancellation(t *testing.T) {
	var checks atomic.Int32
	q := &fakeQueue{
		claimPending: once(&store.WorkItem{ID: "todo-1"}),
		readDraftStatus: func(context.Context, string) (string, error) {
			if checks.Add(1) >= 2 {
				return store.DraftCancelled, nil
			}
			return store.DraftRunning, nil
		},
	}
	runner := FlowRunnerFunc(func(ctx context.Context, _ *store.WorkItem) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(5 * time.Second):
			return errors.New("run was not cancelled")
		}
	})

	_, err := NewWorkQueuePoller(q, runner, fastPoll, nil).Poll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, store.DraftCancelled, q.releasedStatus("todo-1"))
	assert.GreaterOrEqual(t, checks.Load(), int32(2))
}

func TestWorkQueuePoller_RunStopsOnCancelAndSurvivesClaimErrors(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var claims atomic.Int32
	q := &fakeQueue{claimPending: func(context.Context) (*store.WorkItem, error) {
		if claims.Add(1) >= 3 {
			cancel()
		}
		return nil, errors.New("connection refused")
	}}

	done := make(chan error, 1)
	go func() { done <- NewWorkQueuePoller(q, FlowRunnerFunc(nil), fastPoll, nil).Run(ctx) }()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
	assert.GreaterOrEqual(t, claims.Load(), int32(3))
}

type fakeAnalyzer struct {
	records []feedback.Record
	err     error
}

func (a *fakeAnalyzer) Analyze(context.Context, *store.WorkItem) ([]feedback.Record, error) {
	return a.records, a.err
}

func TestFeedbackPoller_SavesRecords(t *testing.T) {
	q := &fakeQueue{claimFeedback: once(&store.WorkItem{ID: "todo-2"})}
	records := []feedback.Record{{Agent: "리서처", Feedback: "수치 출처를 명시하세요"}}

	claimed, err := NewFeedbackPoller(q, &fakeAnalyzer{records: records}, time.Millisecond, nil).Poll(context.Background())
	require.NoError(t, err)
	assert.True(t, claimed)
	assert.Equal(t, records, q.feedbacks["todo-2"])
}

func TestFeedbackPoller_NoRecordsSavesEmptyList(t *testing.T) {
	q := &fakeQueue{claimFeedback: once(&store.WorkItem{ID: "todo-2"})}

	_, err := NewFeedbackPoller(q, &fakeAnalyzer{}, time.Millisecond, nil).Poll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []feedback.Record{}, q.feedbacks["todo-2"])
}

func TestFeedbackPoller_AnalyzerFailure(t *testing.T) {
	q := &fakeQueue{claimFeedback: once(&store.WorkItem{ID: "todo-2"})}

	claimed, err := NewFeedbackPoller(q, &fakeAnalyzer{err: errors.New("boom")}, time.Millisecond, nil).Poll(context.Background())
	assert.True(t, claimed)
	assert.Error(t, err)
	assert.NotContains(t, q.feedbacks, "todo-2")
}

func TestFeedbackPoller_Idle(t *testing.T) {
	claimed, err := NewFeedbackPoller(&fakeQueue{}, &fakeAnalyzer{}, 0, nil).Poll(context.Background())
	require.NoError(t, err)
	assert.False(t, claimed)
}

// helperWorker stands in for "formcrew worker" when the test binary is
// re-executed by ProcessRunner.
func helperWorker() {
	args := os.Args[1:]
	if len(args) != 3 || args[0] != "worker" || args[1] != "--inputs" {
		os.Stderr.WriteString("unexpected args: " + strings.Join(args, " "))
		os.Exit(2)
	}
	if strings.Contains(args[2], `"topic":"fail"`) {
		os.Stderr.WriteString("flow failed: PLAN")
		os.Exit(1)
	}
	os.Exit(0)
}

func processRunner() *ProcessRunner {
	return &ProcessRunner{
		Path: os.Args[0],
		Env:  []string{"FORMCREW_HELPER_WORKER=1"},
		Inputs: func(_ context.Context, item *store.WorkItem) (any, error) {
			return map[string]string{"todo_id": item.ID, "topic": item.ActivityName}, nil
		},
	}
}

func TestProcessRunner(t *testing.T) {
	r := processRunner()
	require.NoError(t, r.RunItem(context.Background(), &store.WorkItem{ID: "todo-1", ActivityName: "분기 보고"}))

	err := r.RunItem(context.Background(), &store.WorkItem{ID: "todo-2", ActivityName: "fail"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "flow failed: PLAN")
}

func TestProcessRunner_InputsError(t *testing.T) {
	r := processRunner()
	r.Inputs = func(context.Context, *store.WorkItem) (any, error) { return nil, store.ErrNotFound }
	err := r.RunItem(context.Background(), &store.WorkItem{ID: "todo-1"})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestTail_KeepsRuneBoundary(t *testing.T) {
	assert.Equal(t, "짧음", tail("  짧음\n", 10))

	// Each Hangul syllable is three bytes; a cut at 4 lands mid-rune.
	got := tail("가나다", 4)
	assert.Equal(t, "...다", got)
	assert.True(t, utf8.ValidString(got))
}
