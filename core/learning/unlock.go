package learning

// IsLevelLocked reports whether a level gated at minStars is locked for a learner with totalStars.
// Reaching the threshold exactly unlocks the level.
func IsLevelLocked(totalStars, minStars int) bool {
	return totalStars < minStars
}

// EvaluateUnlocks returns the lock state of every level, keyed by level ID.
// Thresholds are taken as configured: no ordering between levels is enforced.
func EvaluateUnlocks(totalStars int, levels []Level) map[int64]bool {
	locked := make(map[int64]bool, len(levels))
	for _, lvl := range levels {
		locked[lvl.ID] = IsLevelLocked(totalStars, lvl.MinStarsRequired)
	}
	return locked
}

// IsLessonLocked reports whether a lesson is locked: its level is locked or it is not released yet.
func IsLessonLocked(levelLocked bool, lesson Lesson) bool {
	return levelLocked || lesson.ComingSoon
}

// BuildPath annotates levels and their lessons for a learner with the given stars per lesson.
// levels must be ordered by level order and lessons by lesson order.
func BuildPath(levels []Level, lessons []Lesson, stars map[int64]int) []LevelView {
	total := 0
	for _, s := range stars {
		total += s
	}
	locked := EvaluateUnlocks(total, levels)

	byLevel := make(map[int64][]LessonView, len(levels))
	for _, lsn := range lessons {
		byLevel[lsn.LevelID] = append(byLevel[lsn.LevelID], LessonView{
			Lesson:    lsn,
			UserStars: stars[lsn.ID],
			IsLocked:  IsLessonLocked(locked[lsn.LevelID], lsn),
		})
	}

	path := make([]LevelView, 0, len(levels))
	for _, lvl := range levels {
		views := byLevel[lvl.ID]
		if views == nil {
			views = []LessonView{}
		}
		path = append(path, LevelView{Level: lvl, IsLocked: locked[lvl.ID], Lessons: views})
	}
	return path
}
