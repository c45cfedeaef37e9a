package learning

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsLevelLocked(t *testing.T) {
	tests := []struct {
		total, min int
		want       bool
	}{
		{total: 0, min: 0, want: false},
		{total: 0, min: 1, want: true},
		{total: 4, min: 5, want: true},
		{total: 5, min: 5, want: false},
		{total: 6, min: 5, want: false},
		{total: 100, min: 3, want: false},
	}
	for _, tt := range tests {
		assert.Equalf(t, tt.want, IsLevelLocked(tt.total, tt.min), "total=%d min=%d", tt.total, tt.min)
	}
}

func TestEvaluateUnlocks(t *testing.T) {
	levels := []Level{
		{ID: 1, Order: 1, MinStarsRequired: 0},
		{ID: 2, Order: 2, MinStarsRequired: 10},
		{ID: 3, Order: 3, MinStarsRequired: 4}, // lower than level 2: taken as configured
	}
	assert.Equal(t, map[int64]bool{1: false, 2: true, 3: false}, EvaluateUnlocks(5, levels))
	assert.Equal(t, map[int64]bool{1: false, 2: true, 3: true}, EvaluateUnlocks(0, levels))
}

func TestBuildPath(t *testing.T) {
	levels := []Level{
		{ID: 1, Name: "Basics", Order: 1},
		{ID: 2, Name: "Idioms", Order: 2, MinStarsRequired: 5},
		{ID: 3, Name: "Empty", Order: 3},
	}
	lessons := []Lesson{
		{ID: 10, LevelID: 1, Order: 1},
		{ID: 11, LevelID: 1, Order: 2, ComingSoon: true},
		{ID: 20, LevelID: 2, Order: 1},
	}

	t.Run("locked while below the threshold", func(t *testing.T) {
		path := BuildPath(levels, lessons, map[int64]int{10: 3, 11: 1})
		if assert.Len(t, path, 3) {
			assert.False(t, path[0].IsLocked)
			assert.Equal(t, 3, path[0].Lessons[0].UserStars)
			assert.False(t, path[0].Lessons[0].IsLocked)
			assert.True(t, path[0].Lessons[1].IsLocked, "coming soon lessons are always locked")

			assert.True(t, path[1].IsLocked)
			assert.True(t, path[1].Lessons[0].IsLocked)
			assert.Equal(t, 0, path[1].Lessons[0].UserStars)

			assert.NotNil(t, path[2].Lessons)
			assert.Empty(t, path[2].Lessons)
		}
	})

	t.Run("unlocked at the threshold", func(t *testing.T) {
		path := BuildPath(levels, lessons, map[int64]int{10: 3, 11: 2})
		assert.False(t, path[1].IsLocked)
		assert.False(t, path[1].Lessons[0].IsLocked)
	})
}
