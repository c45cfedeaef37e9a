package learning

import "time"

// ComputeStats aggregates progress rows: the sum of stars and the count of lessons with stars > 0.
func ComputeStats(userID string, progress []Progress, now time.Time) Stats {
	stats := Stats{UserID: userID, UpdatedAt: now}
	var last time.Time
	for _, p := range progress {
		stats.TotalStars += p.Stars
		if p.Stars > 0 {
			stats.LessonsCompleted++
		}
		if p.UpdatedAt.After(last) {
			last = p.UpdatedAt
		}
	}
	if !last.IsZero() {
		stats.LastActivityDate = &last
	}
	return stats
}

// starsByLesson indexes progress rows by lesson.
func starsByLesson(progress []Progress) map[int64]int {
	stars := make(map[int64]int, len(progress))
	for _, p := range progress {
		stars[p.LessonID] = p.Stars
	}
	return stars
}
