package status

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dusk-indust/formcrew/internal/store"
)

func TestStageOf(t *testing.T) {
	cases := []struct {
		item store.WorkItem
		want Stage
	}{
		{store.WorkItem{Status: store.StatusInProgress}, StagePending},
		{store.WorkItem{Status: store.StatusInProgress, DraftStatus: store.DraftRunning}, StageRunning},
		{store.WorkItem{Status: store.StatusInProgress, DraftStatus: store.DraftCompleted}, StageDraft},
		{store.WorkItem{Status: store.StatusInProgress, DraftStatus: store.DraftFBRequested}, StageRevision},
		{store.WorkItem{Status: store.StatusSubmitted, DraftStatus: store.DraftCompleted}, StageSubmitted},
		{store.WorkItem{Status: store.StatusDone, Feedback: json.RawMessage(`[]`)}, StageReviewed},
		{store.WorkItem{DraftStatus: store.DraftFailed}, StageFailed},
		{store.WorkItem{DraftStatus: store.DraftCancelled}, StageCancelled},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, StageOf(&tc.item), "%+v", tc.item)
	}
}

func TestDescribe(t *testing.T) {
	item := &store.WorkItem{
		ID:          "todo-1",
		Status:      store.StatusInProgress,
		DraftStatus: store.DraftCompleted,
		Draft:       json.RawMessage(`{"reports":{"r2":"b","r1":"a"},"slides":{"s1":"x"},"texts":{}}`),
		Feedback:    json.RawMessage(`[{"agent":"리서처","feedback":"f"}]`),
	}
	st := Describe(item)
	assert.Equal(t, []string{"r1", "r2"}, st.Reports)
	assert.Equal(t, []string{"s1"}, st.Slides)
	assert.Nil(t, st.Texts)
	assert.Equal(t, 1, st.Feedback)
	assert.Equal(t, StageDraft, st.Stage)

	bad := Describe(&store.WorkItem{ID: "todo-2", Draft: json.RawMessage(`not json`)})
	assert.Nil(t, bad.Reports)
}

type fakeSource struct{ items []*store.WorkItem }

func (f fakeSource) Get(_ context.Context, id string) (*store.WorkItem, error) {
	for _, it := range f.items {
		if it.ID == id {
			return it, nil
		}
	}
	return nil, store.ErrNotFound
}

func (f fakeSource) List(context.Context, int) ([]*store.WorkItem, error) { return f.items, nil }

func TestRecentAndPrint(t *testing.T) {
	src := fakeSource{items: []*store.WorkItem{
		{ID: "todo-1", ActivityName: "분기 보고", DraftStatus: store.DraftRunning},
		{ID: "todo-2", ActivityName: "주간 회의", Status: store.StatusSubmitted},
	}}
	statuses, err := Recent(context.Background(), src, 10)
	require.NoError(t, err)
	require.Len(t, statuses, 2)

	var buf bytes.Buffer
	require.NoError(t, Print(&buf, statuses))
	assert.Contains(t, buf.String(), "STAGE")
	assert.Contains(t, buf.String(), "running")
	assert.Contains(t, buf.String(), "submitted")

	_, err = Get(context.Background(), src, "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}
