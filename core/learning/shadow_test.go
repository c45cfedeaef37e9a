package learning

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kashur/backend/core"
)

func TestShadowStore_Record(t *testing.T) {
	tests := []struct {
		s1, s2 int
	}{
		{0, 0}, {0, 3}, {3, 0}, {1, 2}, {2, 1}, {2, 2}, {3, 3},
	}
	for _, tt := range tests {
		store := NewShadowStore(NewMemoryBackend())
		_, err := store.Record(7, tt.s1)
		require.NoError(t, err)
		_, err = store.Record(7, tt.s2)
		require.NoError(t, err)

		want := tt.s1
		if tt.s2 > want {
			want = tt.s2
		}
		assert.Equalf(t, want, store.Entries()[7], "record(%d) then record(%d)", tt.s1, tt.s2)
	}
}

func TestShadowStore_Totals(t *testing.T) {
	store := NewShadowStore(NewMemoryBackend())
	for id, stars := range map[int64]int{1: 2, 2: 0, 3: 3} {
		_, err := store.Record(id, stars)
		require.NoError(t, err)
	}
	totals := store.Totals()
	assert.Equal(t, 5, totals.TotalStars)
	assert.Equal(t, 2, totals.LessonsCompleted)
}

func TestShadowStore_Entries(t *testing.T) {
	tests := []struct {
		name string
		data string
		want map[int64]int
	}{
		{name: "empty", data: "", want: map[int64]int{}},
		{name: "garbage", data: "not json", want: map[int64]int{}},
		{name: "valid", data: `{"1":2,"3":3}`, want: map[int64]int{1: 2, 3: 3}},
		{name: "bad keys are skipped", data: `{"x":2,"3":1}`, want: map[int64]int{3: 1}},
		{name: "out of range values are clamped", data: `{"1":9,"2":-1}`, want: map[int64]int{1: 3, 2: 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := NewMemoryBackend()
			if tt.data != "" {
				require.NoError(t, backend.Save(ShadowKey, []byte(tt.data)))
			}
			assert.Equal(t, tt.want, NewShadowStore(backend).Entries())
		})
	}
}

type recorderFunc func(ctx context.Context, learner Learner, lessonID int64, stars int) (RecordResult, error)

func (f recorderFunc) RecordProgress(ctx context.Context, learner Learner, lessonID int64, stars int) (RecordResult, error) {
	return f(ctx, learner, lessonID, stars)
}

func TestShadowStore_Migrate(t *testing.T) {
	ctx := context.Background()

	t.Run("no user", func(t *testing.T) {
		store := NewShadowStore(NewMemoryBackend())
		_, err := store.Migrate(ctx, "", recorderFunc(nil))
		assert.Error(t, err)
	})

	t.Run("all confirmed", func(t *testing.T) {
		backend := NewMemoryBackend()
		store := NewShadowStore(backend)
		_, _ = store.Record(2, 3)
		_, _ = store.Record(1, 2)

		var replayed []int64
		res, err := store.Migrate(ctx, "u1", recorderFunc(func(_ context.Context, l Learner, id int64, stars int) (RecordResult, error) {
			assert.Equal(t, "u1", l.UserID)
			replayed = append(replayed, id)
			return RecordResult{}, nil
		}))
		require.NoError(t, err)
		assert.Equal(t, []int64{1, 2}, replayed)
		assert.Equal(t, []int64{1, 2}, res.Migrated)
		assert.Empty(t, res.Failed)
		assert.Empty(t, store.Entries())

		data, _ := backend.Load(ShadowKey)
		assert.Empty(t, data, "an empty store is cleared")
	})

	t.Run("partial failure keeps unconfirmed entries", func(t *testing.T) {
		store := NewShadowStore(NewMemoryBackend())
		_, _ = store.Record(1, 2)
		_, _ = store.Record(2, 3)
		_, _ = store.Record(3, 1)

		res, err := store.Migrate(ctx, "u1", recorderFunc(func(_ context.Context, _ Learner, id int64, _ int) (RecordResult, error) {
			if id == 2 {
				return RecordResult{}, errors.New("boom")
			}
			return RecordResult{}, nil
		}))
		require.NoError(t, err)
		assert.Equal(t, []int64{1, 3}, res.Migrated)
		assert.Contains(t, res.Failed, int64(2))
		assert.Equal(t, map[int64]int{2: 3}, store.Entries())
	})

	t.Run("rejected entries are dropped", func(t *testing.T) {
		store := NewShadowStore(NewMemoryBackend())
		for id := int64(1); id <= 4; id++ {
			_, _ = store.Record(id, 2)
		}

		res, err := store.Migrate(ctx, "u1", recorderFunc(func(_ context.Context, _ Learner, id int64, _ int) (RecordResult, error) {
			switch id {
			case 1:
				return RecordResult{}, ErrNotFound
			case 2:
				return RecordResult{}, core.NewValidationError(ErrInvalidStars)
			case 3:
				return RecordResult{}, errors.Wrap(errFake, "saving progress")
			}
			return RecordResult{}, nil
		}))
		require.NoError(t, err)
		assert.Equal(t, []int64{4}, res.Migrated)
		assert.Equal(t, []int64{1, 2}, res.Dropped)
		assert.Len(t, res.Failed, 1)
		assert.Contains(t, res.Failed, int64(3))
		assert.Equal(t, map[int64]int{3: 2}, store.Entries())
	})

	t.Run("cancelled context keeps everything", func(t *testing.T) {
		store := NewShadowStore(NewMemoryBackend())
		_, _ = store.Record(1, 2)
		cctx, cancel := context.WithCancel(ctx)
		cancel()

		res, err := store.Migrate(cctx, "u1", recorderFunc(func(context.Context, Learner, int64, int) (RecordResult, error) {
			t.Fatal("recorder must not be called")
			return RecordResult{}, nil
		}))
		require.NoError(t, err)
		assert.Empty(t, res.Migrated)
		assert.Equal(t, map[int64]int{1: 2}, store.Entries())
	})
}
