package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mathcanvas/internal/pipeline"
)

func openTestStore(t *testing.T) *ReportStore {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "reports.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleReport() pipeline.Report {
	verified := true
	return pipeline.Report{
		TotalFound:     2,
		TotalSucceeded: 1,
		Items: []pipeline.ItemResult{
			{
				Kind:         pipeline.KindNumberLine,
				RawDirective: "[number-line]0,1[/number-line]",
				Artifact:     "<svg/>",
				Succeeded:    true,
				AttemptsMade: 1,
				Verified:     &verified,
			},
			{
				Kind:               pipeline.KindGraph,
				RawDirective:       "[graph]plot x[/graph]",
				SourcePosition:     31,
				Succeeded:          false,
				AttemptsMade:       3,
				VerificationErrors: []string{"axis missing"},
			},
		},
	}
}

func TestSaveAndGet(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	want := sampleReport()
	require.NoError(t, s.Save(ctx, "run-1", want))

	got, err := s.Get(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestGetUnknownID(t *testing.T) {
	s := openTestStore(t)

	_, err := s.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSaveDuplicateIDFails(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, "run-1", sampleReport()))
	assert.Error(t, s.Save(ctx, "run-1", sampleReport()))
}

func TestListNewestFirst(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, "older", pipeline.Report{TotalFound: 1}))
	time.Sleep(10 * time.Millisecond) // created_at must differ for ordering
	require.NoError(t, s.Save(ctx, "newer", pipeline.Report{TotalFound: 2, TotalSucceeded: 2}))

	summaries, err := s.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, summaries, 2)

	assert.Equal(t, "newer", summaries[0].ID)
	assert.Equal(t, 2, summaries[0].TotalFound)
	assert.Equal(t, 2, summaries[0].TotalSucceeded)
	assert.Equal(t, "older", summaries[1].ID)
	assert.False(t, summaries[0].CreatedAt.IsZero())
}

func TestListLimit(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, s.Save(ctx, id, pipeline.Report{}))
	}

	summaries, err := s.List(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, summaries, 2)
}

func TestOpenCreatesParentDirectories(t *testing.T) {
	path := filepath.Join(t.TempDir(), "deep", "nested", "reports.db")
	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Close())
}
