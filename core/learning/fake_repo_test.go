package learning

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"

	"github.com/kashur/backend/core"
)

var (
	errFake   = errors.New("store unavailable")
	errUnique = sqlite3.Error{Code: sqlite3.ErrConstraint, ExtendedCode: sqlite3.ErrConstraintUnique}
)

// fakeRepo is an in-memory Repository. The fail* counters make the next N calls of an operation fail.
type fakeRepo struct {
	mu       sync.Mutex
	nextID   int64
	levels   map[int64]Level
	lessons  map[int64]Lesson
	steps    map[int64]Step
	badges   map[int64]Badge
	letters  map[int64]Letter
	progress map[string]map[int64]Progress
	stats    map[string]Stats
	grants   map[string]map[int64]UserBadge

	failGetLesson      int
	failUpsertProgress int
	failUpsertStats    int
	failGrant          int
	failGrantCall      int // fails the grant call with this number only
	getLessonCalls     int
	upsertCalls        int
	grantCalls         int
}

var _ Repository = (*fakeRepo)(nil)

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		levels:   make(map[int64]Level),
		lessons:  make(map[int64]Lesson),
		steps:    make(map[int64]Step),
		badges:   make(map[int64]Badge),
		letters:  make(map[int64]Letter),
		progress: make(map[string]map[int64]Progress),
		stats:    make(map[string]Stats),
		grants:   make(map[string]map[int64]UserBadge),
	}
}

func (r *fakeRepo) id() int64 {
	r.nextID++
	return r.nextID
}

func (r *fakeRepo) QueryLevels(_ context.Context, _ ...core.DBExecutor) ([]Level, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	levels := make([]Level, 0, len(r.levels))
	for _, lvl := range r.levels {
		levels = append(levels, lvl)
	}
	sort.Slice(levels, func(i, j int) bool { return levels[i].Order < levels[j].Order })
	return levels, nil
}

func (r *fakeRepo) GetLevel(_ context.Context, id int64, _ ...core.DBExecutor) (Level, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	lvl, ok := r.levels[id]
	if !ok {
		return Level{}, ErrNotFound
	}
	return lvl, nil
}

func (r *fakeRepo) CreateLevel(_ context.Context, lvl Level, _ ...core.DBExecutor) (Level, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, l := range r.levels {
		if l.Order == lvl.Order {
			return Level{}, errors.Wrap(errUnique, "levels.level_order")
		}
	}
	lvl.ID = r.id()
	r.levels[lvl.ID] = lvl
	return lvl, nil
}

func (r *fakeRepo) UpdateLevel(_ context.Context, lvl Level, _ ...core.DBExecutor) (Level, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, l := range r.levels {
		if l.ID != lvl.ID && l.Order == lvl.Order {
			return Level{}, errors.Wrap(errUnique, "levels.level_order")
		}
	}
	r.levels[lvl.ID] = lvl
	return lvl, nil
}

func (r *fakeRepo) DeleteLevel(_ context.Context, id int64, _ ...core.DBExecutor) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.levels[id]; !ok {
		return ErrNotFound
	}
	delete(r.levels, id)
	return nil
}

func (r *fakeRepo) QueryLessons(_ context.Context, levelID int64, _ ...core.DBExecutor) ([]Lesson, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	lessons := make([]Lesson, 0)
	for _, lsn := range r.lessons {
		if levelID == 0 || lsn.LevelID == levelID {
			lessons = append(lessons, lsn)
		}
	}
	sort.Slice(lessons, func(i, j int) bool {
		li, lj := r.levels[lessons[i].LevelID], r.levels[lessons[j].LevelID]
		if li.Order != lj.Order {
			return li.Order < lj.Order
		}
		return lessons[i].Order < lessons[j].Order
	})
	return lessons, nil
}

func (r *fakeRepo) GetLesson(_ context.Context, id int64, _ ...core.DBExecutor) (Lesson, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.getLessonCalls++
	if r.failGetLesson > 0 {
		r.failGetLesson--
		return Lesson{}, errFake
	}
	lsn, ok := r.lessons[id]
	if !ok {
		return Lesson{}, ErrNotFound
	}
	return lsn, nil
}

func (r *fakeRepo) NextLesson(ctx context.Context, levelID int64, afterOrder int, _ ...core.DBExecutor) (Lesson, error) {
	lessons, _ := r.QueryLessons(ctx, levelID)
	for _, lsn := range lessons {
		if lsn.Order > afterOrder {
			return lsn, nil
		}
	}
	return Lesson{}, ErrNotFound
}

func (r *fakeRepo) CreateLesson(_ context.Context, lsn Lesson, _ ...core.DBExecutor) (Lesson, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, l := range r.lessons {
		if l.LevelID == lsn.LevelID && l.Order == lsn.Order {
			return Lesson{}, errors.Wrap(errUnique, "lessons.level_id, lessons.lesson_order")
		}
	}
	lsn.ID = r.id()
	r.lessons[lsn.ID] = lsn
	return lsn, nil
}

func (r *fakeRepo) UpdateLesson(_ context.Context, lsn Lesson, _ ...core.DBExecutor) (Lesson, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lessons[lsn.ID] = lsn
	return lsn, nil
}

func (r *fakeRepo) DeleteLesson(_ context.Context, id int64, _ ...core.DBExecutor) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.lessons, id)
	return nil
}

func (r *fakeRepo) QuerySteps(_ context.Context, lessonID int64, _ ...core.DBExecutor) ([]Step, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	steps := make([]Step, 0)
	for _, s := range r.steps {
		if s.LessonID == lessonID {
			steps = append(steps, s)
		}
	}
	sort.Slice(steps, func(i, j int) bool { return steps[i].Order < steps[j].Order })
	return steps, nil
}

func (r *fakeRepo) GetStep(_ context.Context, id int64, _ ...core.DBExecutor) (Step, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.steps[id]
	if !ok {
		return Step{}, ErrNotFound
	}
	return s, nil
}

func (r *fakeRepo) CreateStep(_ context.Context, step Step, _ ...core.DBExecutor) (Step, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	step.ID = r.id()
	r.steps[step.ID] = step
	return step, nil
}

func (r *fakeRepo) UpdateStep(_ context.Context, step Step, _ ...core.DBExecutor) (Step, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.steps[step.ID] = step
	return step, nil
}

func (r *fakeRepo) DeleteStep(_ context.Context, id int64, _ ...core.DBExecutor) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.steps, id)
	return nil
}

func (r *fakeRepo) QueryBadges(_ context.Context, _ ...core.DBExecutor) ([]Badge, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	badges := make([]Badge, 0, len(r.badges))
	for _, b := range r.badges {
		badges = append(badges, b)
	}
	sort.Slice(badges, func(i, j int) bool { return badges[i].ID < badges[j].ID })
	return badges, nil
}

func (r *fakeRepo) GetBadge(_ context.Context, id int64, _ ...core.DBExecutor) (Badge, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.badges[id]
	if !ok {
		return Badge{}, ErrNotFound
	}
	return b, nil
}

func (r *fakeRepo) CreateBadge(_ context.Context, badge Badge, _ ...core.DBExecutor) (Badge, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	badge.ID = r.id()
	r.badges[badge.ID] = badge
	return badge, nil
}

func (r *fakeRepo) UpdateBadge(_ context.Context, badge Badge, _ ...core.DBExecutor) (Badge, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.badges[badge.ID] = badge
	return badge, nil
}

func (r *fakeRepo) DeleteBadge(_ context.Context, id int64, _ ...core.DBExecutor) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.badges, id)
	return nil
}

func (r *fakeRepo) QueryLetters(_ context.Context, _ ...core.DBExecutor) ([]Letter, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	letters := make([]Letter, 0, len(r.letters))
	for _, ltr := range r.letters {
		letters = append(letters, ltr)
	}
	sort.Slice(letters, func(i, j int) bool { return letters[i].Order < letters[j].Order })
	return letters, nil
}

func (r *fakeRepo) GetLetter(_ context.Context, id int64, _ ...core.DBExecutor) (Letter, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ltr, ok := r.letters[id]
	if !ok {
		return Letter{}, ErrNotFound
	}
	return ltr, nil
}

func (r *fakeRepo) CreateLetter(_ context.Context, ltr Letter, _ ...core.DBExecutor) (Letter, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, l := range r.letters {
		if l.Order == ltr.Order {
			return Letter{}, errors.Wrap(errUnique, "alphabet.lesson_order")
		}
	}
	ltr.ID = r.id()
	r.letters[ltr.ID] = ltr
	return ltr, nil
}

func (r *fakeRepo) UpdateLetter(_ context.Context, ltr Letter, _ ...core.DBExecutor) (Letter, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.letters[ltr.ID]; !ok {
		return Letter{}, ErrNotFound
	}
	for _, l := range r.letters {
		if l.ID != ltr.ID && l.Order == ltr.Order {
			return Letter{}, errors.Wrap(errUnique, "alphabet.lesson_order")
		}
	}
	r.letters[ltr.ID] = ltr
	return ltr, nil
}

func (r *fakeRepo) DeleteLetter(_ context.Context, id int64, _ ...core.DBExecutor) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.letters[id]; !ok {
		return ErrNotFound
	}
	delete(r.letters, id)
	return nil
}

func (r *fakeRepo) UpsertProgress(_ context.Context, p Progress, _ ...core.DBExecutor) (Progress, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.upsertCalls++
	if r.failUpsertProgress > 0 {
		r.failUpsertProgress--
		return Progress{}, errFake
	}
	rows := r.progress[p.UserID]
	if rows == nil {
		rows = make(map[int64]Progress)
		r.progress[p.UserID] = rows
	}
	if cur, ok := rows[p.LessonID]; ok {
		if cur.Stars > p.Stars {
			p.Stars = cur.Stars
		}
		p.CompletedAt = cur.CompletedAt
	}
	rows[p.LessonID] = p
	return p, nil
}

func (r *fakeRepo) QueryProgress(_ context.Context, userID string, _ ...core.DBExecutor) ([]Progress, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	progress := make([]Progress, 0, len(r.progress[userID]))
	for _, p := range r.progress[userID] {
		progress = append(progress, p)
	}
	sort.Slice(progress, func(i, j int) bool { return progress[i].LessonID < progress[j].LessonID })
	return progress, nil
}

func (r *fakeRepo) GetStats(_ context.Context, userID string, _ ...core.DBExecutor) (Stats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.stats[userID]
	if !ok {
		return Stats{}, ErrNotFound
	}
	return s, nil
}

func (r *fakeRepo) UpsertStats(_ context.Context, stats Stats, _ ...core.DBExecutor) (Stats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failUpsertStats > 0 {
		r.failUpsertStats--
		return Stats{}, errFake
	}
	r.stats[stats.UserID] = stats
	return stats, nil
}

func (r *fakeRepo) QueryLeaderboard(_ context.Context, limit int, _ ...core.DBExecutor) ([]LeaderboardEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entries := make([]LeaderboardEntry, 0, len(r.stats))
	for _, s := range r.stats {
		entries = append(entries, LeaderboardEntry{
			UserID:           s.UserID,
			Username:         strings.ToLower(s.UserID),
			TotalStars:       s.TotalStars,
			LessonsCompleted: s.LessonsCompleted,
		})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].TotalStars != entries[j].TotalStars {
			return entries[i].TotalStars > entries[j].TotalStars
		}
		return entries[i].UserID < entries[j].UserID
	})
	if len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

func (r *fakeRepo) QueryLearnerIDs(_ context.Context, _ ...core.DBExecutor) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	seen := make(map[string]bool)
	for id := range r.progress {
		seen[id] = true
	}
	for id := range r.stats {
		seen[id] = true
	}
	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (r *fakeRepo) GrantBadge(_ context.Context, userID string, badgeID int64, awardedAt time.Time, _ ...core.DBExecutor) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.grantCalls++
	if r.failGrant > 0 {
		r.failGrant--
		return false, errFake
	}
	if r.grantCalls == r.failGrantCall {
		return false, errFake
	}
	grants := r.grants[userID]
	if grants == nil {
		grants = make(map[int64]UserBadge)
		r.grants[userID] = grants
	}
	if _, ok := grants[badgeID]; ok {
		return false, nil
	}
	grants[badgeID] = UserBadge{UserID: userID, BadgeID: badgeID, AwardedAt: awardedAt, Badge: r.badges[badgeID]}
	return true, nil
}

func (r *fakeRepo) QueryUserBadges(_ context.Context, userID string, _ ...core.DBExecutor) ([]UserBadge, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ubs := make([]UserBadge, 0, len(r.grants[userID]))
	for _, ub := range r.grants[userID] {
		ubs = append(ubs, ub)
	}
	sort.Slice(ubs, func(i, j int) bool { return ubs[i].BadgeID < ubs[j].BadgeID })
	return ubs, nil
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}
func (nopLogger) Fatal(string, ...interface{}) {}
