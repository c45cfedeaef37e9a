package learning

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/kashur/backend/core"
)

var (
	// errors
	ErrNotFound          = errors.New("not found")
	ErrInvalidStars      = errors.Errorf("stars must be between 0 and %d", MaxStars)
	ErrUnknownLevel      = errors.New("level does not exist")
	ErrUnknownLesson     = errors.New("lesson does not exist")
	ErrLevelOrderExists  = errors.New("a level with this order already exists")
	ErrLessonOrderExists = errors.New("a lesson with this order already exists in the level")
	ErrLetterOrderExists = errors.New("a letter with this order already exists")
)

type Repository interface {
	// QueryLevels returns levels ordered by level_order.
	QueryLevels(ctx context.Context, exec ...core.DBExecutor) ([]Level, error)
	GetLevel(ctx context.Context, id int64, exec ...core.DBExecutor) (Level, error)
	CreateLevel(ctx context.Context, lvl Level, exec ...core.DBExecutor) (Level, error)
	UpdateLevel(ctx context.Context, lvl Level, exec ...core.DBExecutor) (Level, error)
	DeleteLevel(ctx context.Context, id int64, exec ...core.DBExecutor) error

	// QueryLessons returns the lessons of levelID (all lessons when 0) ordered by level then lesson_order.
	QueryLessons(ctx context.Context, levelID int64, exec ...core.DBExecutor) ([]Lesson, error)
	GetLesson(ctx context.Context, id int64, exec ...core.DBExecutor) (Lesson, error)
	// NextLesson returns the lesson of levelID following afterOrder, or ErrNotFound.
	NextLesson(ctx context.Context, levelID int64, afterOrder int, exec ...core.DBExecutor) (Lesson, error)
	CreateLesson(ctx context.Context, lsn Lesson, exec ...core.DBExecutor) (Lesson, error)
	UpdateLesson(ctx context.Context, lsn Lesson, exec ...core.DBExecutor) (Lesson, error)
	DeleteLesson(ctx context.Context, id int64, exec ...core.DBExecutor) error

	// QuerySteps returns the steps of a lesson ordered by step_order.
	QuerySteps(ctx context.Context, lessonID int64, exec ...core.DBExecutor) ([]Step, error)
	GetStep(ctx context.Context, id int64, exec ...core.DBExecutor) (Step, error)
	CreateStep(ctx context.Context, step Step, exec ...core.DBExecutor) (Step, error)
	UpdateStep(ctx context.Context, step Step, exec ...core.DBExecutor) (Step, error)
	DeleteStep(ctx context.Context, id int64, exec ...core.DBExecutor) error

	QueryBadges(ctx context.Context, exec ...core.DBExecutor) ([]Badge, error)
	GetBadge(ctx context.Context, id int64, exec ...core.DBExecutor) (Badge, error)
	CreateBadge(ctx context.Context, badge Badge, exec ...core.DBExecutor) (Badge, error)
	UpdateBadge(ctx context.Context, badge Badge, exec ...core.DBExecutor) (Badge, error)
	DeleteBadge(ctx context.Context, id int64, exec ...core.DBExecutor) error

	// QueryLetters returns the alphabet ordered by lesson_order.
	QueryLetters(ctx context.Context, exec ...core.DBExecutor) ([]Letter, error)
	GetLetter(ctx context.Context, id int64, exec ...core.DBExecutor) (Letter, error)
	CreateLetter(ctx context.Context, ltr Letter, exec ...core.DBExecutor) (Letter, error)
	UpdateLetter(ctx context.Context, ltr Letter, exec ...core.DBExecutor) (Letter, error)
	DeleteLetter(ctx context.Context, id int64, exec ...core.DBExecutor) error

	// UpsertProgress writes the (user, lesson) row keeping the highest stars.
	UpsertProgress(ctx context.Context, p Progress, exec ...core.DBExecutor) (Progress, error)
	QueryProgress(ctx context.Context, userID string, exec ...core.DBExecutor) ([]Progress, error)
	GetStats(ctx context.Context, userID string, exec ...core.DBExecutor) (Stats, error)
	UpsertStats(ctx context.Context, stats Stats, exec ...core.DBExecutor) (Stats, error)
	// QueryLeaderboard returns the top `limit` stats by total stars.
	QueryLeaderboard(ctx context.Context, limit int, exec ...core.DBExecutor) ([]LeaderboardEntry, error)
	// QueryLearnerIDs returns the users having progress rows or a stats snapshot.
	QueryLearnerIDs(ctx context.Context, exec ...core.DBExecutor) ([]string, error)

	// GrantBadge inserts the (user, badge) grant if absent and reports whether it was inserted.
	GrantBadge(ctx context.Context, userID string, badgeID int64, awardedAt time.Time, exec ...core.DBExecutor) (bool, error)
	QueryUserBadges(ctx context.Context, userID string, exec ...core.DBExecutor) ([]UserBadge, error)
}

type Service struct {
	repo            Repository
	logger          core.Logger
	stepTimeout     time.Duration
	writeRetries    int
	leaderboardSize int
	nowFunc         func() time.Time // mockable
}

var _ ProgressRecorder = (*Service)(nil)

func NewService(repo Repository, logger core.Logger, conf core.LearningConfig) *Service {
	svc := &Service{
		repo:            repo,
		logger:          logger,
		stepTimeout:     conf.StepTimeout,
		writeRetries:    conf.WriteRetries,
		leaderboardSize: conf.LeaderboardSize,
		nowFunc:         time.Now,
	}
	if svc.stepTimeout <= 0 {
		svc.stepTimeout = 5 * time.Second
	}
	if svc.writeRetries < 0 {
		svc.writeRetries = 0
	}
	if svc.leaderboardSize <= 0 {
		svc.leaderboardSize = 50
	}
	return svc
}

func (svc *Service) now() time.Time {
	return svc.nowFunc().UTC()
}

// learnerStars returns the stars per lesson of a learner: progress rows or guest entries.
func (svc *Service) learnerStars(ctx context.Context, learner Learner) (map[int64]int, error) {
	if learner.IsGuest() {
		if learner.Shadow == nil {
			return map[int64]int{}, nil
		}
		return learner.Shadow.Entries(), nil
	}
	progress, err := svc.repo.QueryProgress(ctx, learner.UserID)
	if err != nil {
		return nil, errors.Wrap(err, "querying progress")
	}
	return starsByLesson(progress), nil
}

// Path returns every level with its lessons annotated for the learner.
// Lock states are derived on each call from the current stars.
func (svc *Service) Path(ctx context.Context, learner Learner) ([]LevelView, error) {
	var (
		levels  []Level
		lessons []Lesson
		stars   map[int64]int
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		levels, err = svc.repo.QueryLevels(gctx)
		return errors.Wrap(err, "querying levels")
	})
	g.Go(func() (err error) {
		lessons, err = svc.repo.QueryLessons(gctx, 0)
		return errors.Wrap(err, "querying lessons")
	})
	g.Go(func() (err error) {
		stars, err = svc.learnerStars(gctx, learner)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return BuildPath(levels, lessons, stars), nil
}

// Lesson returns a lesson with its ordered steps, annotated for the learner.
func (svc *Service) Lesson(ctx context.Context, learner Learner, lessonID int64) (LessonDetail, error) {
	lsn, err := svc.repo.GetLesson(ctx, lessonID)
	if err != nil {
		return LessonDetail{}, err
	}

	var (
		lvl   Level
		steps []Step
		stars map[int64]int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		lvl, err = svc.repo.GetLevel(gctx, lsn.LevelID)
		return errors.Wrap(err, "finding level")
	})
	g.Go(func() (err error) {
		steps, err = svc.repo.QuerySteps(gctx, lsn.ID)
		return errors.Wrap(err, "querying steps")
	})
	g.Go(func() (err error) {
		stars, err = svc.learnerStars(gctx, learner)
		return err
	})
	if err := g.Wait(); err != nil {
		return LessonDetail{}, err
	}

	total := 0
	for _, s := range stars {
		total += s
	}
	if steps == nil {
		steps = []Step{}
	}
	return LessonDetail{
		Lesson: LessonView{
			Lesson:    lsn,
			UserStars: stars[lsn.ID],
			IsLocked:  IsLessonLocked(IsLevelLocked(total, lvl.MinStarsRequired), lsn),
		},
		Steps: steps,
	}, nil
}

// NextLesson returns the lesson following lessonID in its level, or nil when it is the last one.
func (svc *Service) NextLesson(ctx context.Context, lessonID int64) (*Lesson, error) {
	lsn, err := svc.repo.GetLesson(ctx, lessonID)
	if err != nil {
		return nil, err
	}
	next, err := svc.repo.NextLesson(ctx, lsn.LevelID, lsn.Order)
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return nil, nil
		}
		return nil, errors.Wrap(err, "finding next lesson")
	}
	return &next, nil
}

// Stats returns the learner's stats: the stored snapshot, or guest totals computed from the shadow store.
func (svc *Service) Stats(ctx context.Context, learner Learner) (Stats, error) {
	if learner.IsGuest() {
		if learner.Shadow == nil {
			return Stats{}, nil
		}
		return learner.Shadow.Totals(), nil
	}
	stats, err := svc.repo.GetStats(ctx, learner.UserID)
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return Stats{UserID: learner.UserID}, nil
		}
		return Stats{}, errors.Wrap(err, "finding stats")
	}
	return stats, nil
}

func (svc *Service) UserBadges(ctx context.Context, userID string) ([]UserBadge, error) {
	return svc.repo.QueryUserBadges(ctx, userID)
}

func (svc *Service) Leaderboard(ctx context.Context) ([]LeaderboardEntry, error) {
	entries, err := svc.repo.QueryLeaderboard(ctx, svc.leaderboardSize)
	if err != nil {
		return nil, errors.Wrap(err, "querying leaderboard")
	}
	for i := range entries {
		entries[i].Rank = i + 1
	}
	return entries, nil
}
