package sqlxrepos

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/kashur/backend/core"
	"github.com/kashur/backend/core/learning"
)

const (
	levelColumns    = "id, name, description, level_order, min_stars_required, created_at"
	lessonColumns   = "id, level_id, title, description, lesson_order, xp_reward, coming_soon, created_at"
	stepColumns     = "id, lesson_id, step_type, step_order, content, created_at"
	badgeColumns    = "id, name, description, icon_url, criteria, created_at"
	letterColumns   = "id, letter, name, pronunciation, example_word_kashmiri, example_word_english, lesson_order, created_at"
	progressColumns = "user_id, lesson_id, stars, completed_at, updated_at"
	statsColumns    = "user_id, total_stars, lessons_completed, last_activity_date, updated_at"
)

type learningRepository struct {
	repository
}

var _ learning.Repository = (*learningRepository)(nil)

func NewLearningRepository(exec core.DBExecutor) *learningRepository {
	return &learningRepository{repository{exec: exec}}
}

// Levels

func (repo learningRepository) QueryLevels(ctx context.Context, exec ...core.DBExecutor) ([]learning.Level, error) {
	levels := make([]learning.Level, 0)
	if err := selectAll(ctx, repo.getExec(exec), &levels, "SELECT "+levelColumns+" FROM levels ORDER BY level_order"); err != nil {
		return nil, errors.Wrap(err, "querying levels")
	}
	return levels, nil
}

func (repo learningRepository) GetLevel(ctx context.Context, id int64, exec ...core.DBExecutor) (learning.Level, error) {
	var lvl learning.Level
	if err := get(ctx, repo.getExec(exec), &lvl, "SELECT "+levelColumns+" FROM levels WHERE id = ?", id); err != nil {
		return learning.Level{}, trapNoRowsErr(err, learning.ErrNotFound, "finding level")
	}
	return lvl, nil
}

func (repo learningRepository) CreateLevel(ctx context.Context, lvl learning.Level, exec ...core.DBExecutor) (learning.Level, error) {
	lvl.CreatedAt = lvl.CreatedAt.UTC()
	id, err := insertReturningID(ctx, repo.getExec(exec),
		`INSERT INTO levels (name, description, level_order, min_stars_required, created_at) VALUES (?, ?, ?, ?, ?) RETURNING id`,
		lvl.Name, lvl.Description, lvl.Order, lvl.MinStarsRequired, lvl.CreatedAt)
	if err != nil {
		return learning.Level{}, errors.Wrap(err, "inserting level")
	}
	lvl.ID = id
	return lvl, nil
}

func (repo learningRepository) UpdateLevel(ctx context.Context, lvl learning.Level, exec ...core.DBExecutor) (learning.Level, error) {
	res, err := execute(ctx, repo.getExec(exec),
		"UPDATE levels SET name = ?, description = ?, level_order = ?, min_stars_required = ? WHERE id = ?",
		lvl.Name, lvl.Description, lvl.Order, lvl.MinStarsRequired, lvl.ID)
	if err != nil {
		return learning.Level{}, errors.Wrap(err, "updating level")
	}
	return lvl, checkAffected(res, learning.ErrNotFound)
}

func (repo learningRepository) DeleteLevel(ctx context.Context, id int64, exec ...core.DBExecutor) error {
	return repo.deleteByID(ctx, "levels", id, exec)
}

func (repo learningRepository) deleteByID(ctx context.Context, table string, id int64, exec []core.DBExecutor) error {
	res, err := execute(ctx, repo.getExec(exec), "DELETE FROM "+table+" WHERE id = ?", id)
	if err != nil {
		return errors.Wrapf(err, "deleting from %s", table)
	}
	return checkAffected(res, learning.ErrNotFound)
}

// Lessons

func (repo learningRepository) QueryLessons(ctx context.Context, levelID int64, exec ...core.DBExecutor) ([]learning.Lesson, error) {
	q := `SELECT l.id, l.level_id, l.title, l.description, l.lesson_order, l.xp_reward, l.coming_soon, l.created_at
		FROM lessons l JOIN levels v ON v.id = l.level_id`
	var args []interface{}
	if levelID != 0 {
		q += " WHERE l.level_id = ?"
		args = append(args, levelID)
	}
	q += " ORDER BY v.level_order, l.lesson_order"

	lessons := make([]learning.Lesson, 0)
	if err := selectAll(ctx, repo.getExec(exec), &lessons, q, args...); err != nil {
		return nil, errors.Wrap(err, "querying lessons")
	}
	return lessons, nil
}

func (repo learningRepository) GetLesson(ctx context.Context, id int64, exec ...core.DBExecutor) (learning.Lesson, error) {
	var lsn learning.Lesson
	if err := get(ctx, repo.getExec(exec), &lsn, "SELECT "+lessonColumns+" FROM lessons WHERE id = ?", id); err != nil {
		return learning.Lesson{}, trapNoRowsErr(err, learning.ErrNotFound, "finding lesson")
	}
	return lsn, nil
}

func (repo learningRepository) NextLesson(ctx context.Context, levelID int64, afterOrder int, exec ...core.DBExecutor) (learning.Lesson, error) {
	var lsn learning.Lesson
	q := "SELECT " + lessonColumns + " FROM lessons WHERE level_id = ? AND lesson_order > ? ORDER BY lesson_order LIMIT 1"
	if err := get(ctx, repo.getExec(exec), &lsn, q, levelID, afterOrder); err != nil {
		return learning.Lesson{}, trapNoRowsErr(err, learning.ErrNotFound, "finding next lesson")
	}
	return lsn, nil
}

func (repo learningRepository) CreateLesson(ctx context.Context, lsn learning.Lesson, exec ...core.DBExecutor) (learning.Lesson, error) {
	lsn.CreatedAt = lsn.CreatedAt.UTC()
	id, err := insertReturningID(ctx, repo.getExec(exec),
		`INSERT INTO lessons (level_id, title, description, lesson_order, xp_reward, coming_soon, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?) RETURNING id`,
		lsn.LevelID, lsn.Title, lsn.Description, lsn.Order, lsn.XPReward, lsn.ComingSoon, lsn.CreatedAt)
	if err != nil {
		return learning.Lesson{}, errors.Wrap(err, "inserting lesson")
	}
	lsn.ID = id
	return lsn, nil
}

func (repo learningRepository) UpdateLesson(ctx context.Context, lsn learning.Lesson, exec ...core.DBExecutor) (learning.Lesson, error) {
	res, err := execute(ctx, repo.getExec(exec),
		`UPDATE lessons SET level_id = ?, title = ?, description = ?, lesson_order = ?, xp_reward = ?, coming_soon = ?
		WHERE id = ?`,
		lsn.LevelID, lsn.Title, lsn.Description, lsn.Order, lsn.XPReward, lsn.ComingSoon, lsn.ID)
	if err != nil {
		return learning.Lesson{}, errors.Wrap(err, "updating lesson")
	}
	return lsn, checkAffected(res, learning.ErrNotFound)
}

func (repo learningRepository) DeleteLesson(ctx context.Context, id int64, exec ...core.DBExecutor) error {
	return repo.deleteByID(ctx, "lessons", id, exec)
}

// Steps

func (repo learningRepository) QuerySteps(ctx context.Context, lessonID int64, exec ...core.DBExecutor) ([]learning.Step, error) {
	steps := make([]learning.Step, 0)
	q := "SELECT " + stepColumns + " FROM steps WHERE lesson_id = ? ORDER BY step_order, id"
	if err := selectAll(ctx, repo.getExec(exec), &steps, q, lessonID); err != nil {
		return nil, errors.Wrap(err, "querying steps")
	}
	return steps, nil
}

func (repo learningRepository) GetStep(ctx context.Context, id int64, exec ...core.DBExecutor) (learning.Step, error) {
	var step learning.Step
	if err := get(ctx, repo.getExec(exec), &step, "SELECT "+stepColumns+" FROM steps WHERE id = ?", id); err != nil {
		return learning.Step{}, trapNoRowsErr(err, learning.ErrNotFound, "finding step")
	}
	return step, nil
}

func (repo learningRepository) CreateStep(ctx context.Context, step learning.Step, exec ...core.DBExecutor) (learning.Step, error) {
	step.CreatedAt = step.CreatedAt.UTC()
	id, err := insertReturningID(ctx, repo.getExec(exec),
		"INSERT INTO steps (lesson_id, step_type, step_order, content, created_at) VALUES (?, ?, ?, ?, ?) RETURNING id",
		step.LessonID, step.Type, step.Order, step.Content, step.CreatedAt)
	if err != nil {
		return learning.Step{}, errors.Wrap(err, "inserting step")
	}
	step.ID = id
	return step, nil
}

func (repo learningRepository) UpdateStep(ctx context.Context, step learning.Step, exec ...core.DBExecutor) (learning.Step, error) {
	res, err := execute(ctx, repo.getExec(exec),
		"UPDATE steps SET lesson_id = ?, step_type = ?, step_order = ?, content = ? WHERE id = ?",
		step.LessonID, step.Type, step.Order, step.Content, step.ID)
	if err != nil {
		return learning.Step{}, errors.Wrap(err, "updating step")
	}
	return step, checkAffected(res, learning.ErrNotFound)
}

func (repo learningRepository) DeleteStep(ctx context.Context, id int64, exec ...core.DBExecutor) error {
	return repo.deleteByID(ctx, "steps", id, exec)
}

// Badges

func (repo learningRepository) QueryBadges(ctx context.Context, exec ...core.DBExecutor) ([]learning.Badge, error) {
	badges := make([]learning.Badge, 0)
	if err := selectAll(ctx, repo.getExec(exec), &badges, "SELECT "+badgeColumns+" FROM badges ORDER BY id"); err != nil {
		return nil, errors.Wrap(err, "querying badges")
	}
	return badges, nil
}

func (repo learningRepository) GetBadge(ctx context.Context, id int64, exec ...core.DBExecutor) (learning.Badge, error) {
	var badge learning.Badge
	if err := get(ctx, repo.getExec(exec), &badge, "SELECT "+badgeColumns+" FROM badges WHERE id = ?", id); err != nil {
		return learning.Badge{}, trapNoRowsErr(err, learning.ErrNotFound, "finding badge")
	}
	return badge, nil
}

func (repo learningRepository) CreateBadge(ctx context.Context, badge learning.Badge, exec ...core.DBExecutor) (learning.Badge, error) {
	badge.CreatedAt = badge.CreatedAt.UTC()
	id, err := insertReturningID(ctx, repo.getExec(exec),
		"INSERT INTO badges (name, description, icon_url, criteria, created_at) VALUES (?, ?, ?, ?, ?) RETURNING id",
		badge.Name, badge.Description, badge.IconURL, badge.Criteria, badge.CreatedAt)
	if err != nil {
		return learning.Badge{}, errors.Wrap(err, "inserting badge")
	}
	badge.ID = id
	return badge, nil
}

func (repo learningRepository) UpdateBadge(ctx context.Context, badge learning.Badge, exec ...core.DBExecutor) (learning.Badge, error) {
	res, err := execute(ctx, repo.getExec(exec),
		"UPDATE badges SET name = ?, description = ?, icon_url = ?, criteria = ? WHERE id = ?",
		badge.Name, badge.Description, badge.IconURL, badge.Criteria, badge.ID)
	if err != nil {
		return learning.Badge{}, errors.Wrap(err, "updating badge")
	}
	return badge, checkAffected(res, learning.ErrNotFound)
}

func (repo learningRepository) DeleteBadge(ctx context.Context, id int64, exec ...core.DBExecutor) error {
	return repo.deleteByID(ctx, "badges", id, exec)
}

// Alphabet

func (repo learningRepository) QueryLetters(ctx context.Context, exec ...core.DBExecutor) ([]learning.Letter, error) {
	letters := make([]learning.Letter, 0)
	if err := selectAll(ctx, repo.getExec(exec), &letters, "SELECT "+letterColumns+" FROM alphabet ORDER BY lesson_order"); err != nil {
		return nil, errors.Wrap(err, "querying alphabet")
	}
	return letters, nil
}

func (repo learningRepository) GetLetter(ctx context.Context, id int64, exec ...core.DBExecutor) (learning.Letter, error) {
	var ltr learning.Letter
	if err := get(ctx, repo.getExec(exec), &ltr, "SELECT "+letterColumns+" FROM alphabet WHERE id = ?", id); err != nil {
		return learning.Letter{}, trapNoRowsErr(err, learning.ErrNotFound, "finding letter")
	}
	return ltr, nil
}

func (repo learningRepository) CreateLetter(ctx context.Context, ltr learning.Letter, exec ...core.DBExecutor) (learning.Letter, error) {
	ltr.CreatedAt = ltr.CreatedAt.UTC()
	id, err := insertReturningID(ctx, repo.getExec(exec),
		`INSERT INTO alphabet (letter, name, pronunciation, example_word_kashmiri, example_word_english, lesson_order, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?) RETURNING id`,
		ltr.Letter, ltr.Name, ltr.Pronunciation, ltr.ExampleWordKashmiri, ltr.ExampleWordEnglish, ltr.Order, ltr.CreatedAt)
	if err != nil {
		return learning.Letter{}, errors.Wrap(err, "inserting letter")
	}
	ltr.ID = id
	return ltr, nil
}

func (repo learningRepository) UpdateLetter(ctx context.Context, ltr learning.Letter, exec ...core.DBExecutor) (learning.Letter, error) {
	res, err := execute(ctx, repo.getExec(exec),
		`UPDATE alphabet SET letter = ?, name = ?, pronunciation = ?, example_word_kashmiri = ?, example_word_english = ?,
		lesson_order = ? WHERE id = ?`,
		ltr.Letter, ltr.Name, ltr.Pronunciation, ltr.ExampleWordKashmiri, ltr.ExampleWordEnglish, ltr.Order, ltr.ID)
	if err != nil {
		return learning.Letter{}, errors.Wrap(err, "updating letter")
	}
	return ltr, checkAffected(res, learning.ErrNotFound)
}

func (repo learningRepository) DeleteLetter(ctx context.Context, id int64, exec ...core.DBExecutor) error {
	return repo.deleteByID(ctx, "alphabet", id, exec)
}

// Progress & stats

func (repo learningRepository) UpsertProgress(ctx context.Context, p learning.Progress, exec ...core.DBExecutor) (learning.Progress, error) {
	exe := repo.getExec(exec)
	q := `INSERT INTO user_progress (` + progressColumns + `) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (user_id, lesson_id) DO UPDATE SET
			stars = CASE WHEN excluded.stars > user_progress.stars THEN excluded.stars ELSE user_progress.stars END,
			updated_at = excluded.updated_at`
	if _, err := execute(ctx, exe, q, p.UserID, p.LessonID, p.Stars, p.CompletedAt.UTC(), p.UpdatedAt.UTC()); err != nil {
		return learning.Progress{}, errors.Wrap(err, "upserting progress")
	}

	var saved learning.Progress
	q = "SELECT " + progressColumns + " FROM user_progress WHERE user_id = ? AND lesson_id = ?"
	if err := get(ctx, exe, &saved, q, p.UserID, p.LessonID); err != nil {
		return learning.Progress{}, errors.Wrap(err, "reading progress")
	}
	return saved, nil
}

func (repo learningRepository) QueryProgress(ctx context.Context, userID string, exec ...core.DBExecutor) ([]learning.Progress, error) {
	progress := make([]learning.Progress, 0)
	q := "SELECT " + progressColumns + " FROM user_progress WHERE user_id = ? ORDER BY lesson_id"
	if err := selectAll(ctx, repo.getExec(exec), &progress, q, userID); err != nil {
		return nil, errors.Wrap(err, "querying progress")
	}
	return progress, nil
}

func (repo learningRepository) GetStats(ctx context.Context, userID string, exec ...core.DBExecutor) (learning.Stats, error) {
	var stats learning.Stats
	if err := get(ctx, repo.getExec(exec), &stats, "SELECT "+statsColumns+" FROM user_stats WHERE user_id = ?", userID); err != nil {
		return learning.Stats{}, trapNoRowsErr(err, learning.ErrNotFound, "finding stats")
	}
	return stats, nil
}

func (repo learningRepository) UpsertStats(ctx context.Context, stats learning.Stats, exec ...core.DBExecutor) (learning.Stats, error) {
	exe := repo.getExec(exec)
	q := `INSERT INTO user_stats (` + statsColumns + `) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE SET
			total_stars = excluded.total_stars,
			lessons_completed = excluded.lessons_completed,
			last_activity_date = excluded.last_activity_date,
			updated_at = excluded.updated_at`
	var lastActivity *time.Time
	if stats.LastActivityDate != nil {
		t := stats.LastActivityDate.UTC()
		lastActivity = &t
	}
	_, err := execute(ctx, exe, q, stats.UserID, stats.TotalStars, stats.LessonsCompleted, lastActivity, stats.UpdatedAt.UTC())
	if err != nil {
		return learning.Stats{}, errors.Wrap(err, "upserting stats")
	}
	return repo.GetStats(ctx, stats.UserID, exe)
}

func (repo learningRepository) QueryLeaderboard(ctx context.Context, limit int, exec ...core.DBExecutor) ([]learning.LeaderboardEntry, error) {
	q := `SELECT s.user_id, u.username, u.name, s.total_stars, s.lessons_completed
		FROM user_stats s JOIN users u ON u.id = s.user_id
		WHERE u.is_active = ?
		ORDER BY s.total_stars DESC, s.lessons_completed DESC, u.username
		LIMIT ?`
	entries := make([]learning.LeaderboardEntry, 0)
	if err := selectAll(ctx, repo.getExec(exec), &entries, q, true, limit); err != nil {
		return nil, errors.Wrap(err, "querying leaderboard")
	}
	return entries, nil
}

func (repo learningRepository) QueryLearnerIDs(ctx context.Context, exec ...core.DBExecutor) ([]string, error) {
	ids := make([]string, 0)
	q := "SELECT user_id FROM user_progress UNION SELECT user_id FROM user_stats ORDER BY user_id"
	if err := selectAll(ctx, repo.getExec(exec), &ids, q); err != nil {
		return nil, errors.Wrap(err, "querying learners")
	}
	return ids, nil
}

// Badge grants

func (repo learningRepository) GrantBadge(ctx context.Context, userID string, badgeID int64, awardedAt time.Time, exec ...core.DBExecutor) (bool, error) {
	res, err := execute(ctx, repo.getExec(exec),
		"INSERT INTO user_badges (user_id, badge_id, awarded_at) VALUES (?, ?, ?) ON CONFLICT (user_id, badge_id) DO NOTHING",
		userID, badgeID, awardedAt.UTC())
	if err != nil {
		return false, errors.Wrap(err, "granting badge")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "granting badge")
	}
	return n == 1, nil
}

func (repo learningRepository) QueryUserBadges(ctx context.Context, userID string, exec ...core.DBExecutor) ([]learning.UserBadge, error) {
	q := `SELECT ub.user_id, ub.badge_id, ub.awarded_at,
			b.id AS "badge.id", b.name AS "badge.name", b.description AS "badge.description",
			b.icon_url AS "badge.icon_url", b.criteria AS "badge.criteria", b.created_at AS "badge.created_at"
		FROM user_badges ub JOIN badges b ON b.id = ub.badge_id
		WHERE ub.user_id = ?
		ORDER BY ub.awarded_at, ub.badge_id`
	grants := make([]learning.UserBadge, 0)
	if err := selectAll(ctx, repo.getExec(exec), &grants, q, userID); err != nil {
		return nil, errors.Wrap(err, "querying user badges")
	}
	return grants, nil
}
