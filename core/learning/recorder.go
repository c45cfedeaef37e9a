package learning

import (
	"context"

	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"github.com/kashur/backend/core"
)

// RecordProgress persists the stars earned on a lesson attempt.
//
// The lesson must exist, for guests too. Guests then only update their shadow store. The lesson
// lookup and, for a user, the progress upsert are the critical write: they are retried up to
// writeRetries times and their failure is returned. Stats and badges follow as best-effort steps:
// their failures end up in RecordResult.Degraded, never in the returned error.
func (svc *Service) RecordProgress(ctx context.Context, learner Learner, lessonID int64, stars int) (RecordResult, error) {
	if stars < 0 || stars > MaxStars {
		return RecordResult{}, core.NewValidationError(ErrInvalidStars, core.FieldError{Field: "stars", Error: ErrInvalidStars.Error()})
	}

	var (
		lsn      Lesson
		progress Progress
	)
	err := svc.withRetries(ctx, "looking up lesson", func(ctx context.Context) (err error) {
		lsn, err = svc.repo.GetLesson(ctx, lessonID)
		return err
	})
	if err != nil {
		return RecordResult{}, err
	}

	if learner.IsGuest() {
		return svc.recordGuest(learner, lsn.ID, stars)
	}

	now := svc.now()
	err = svc.withRetries(ctx, "saving progress", func(ctx context.Context) (err error) {
		progress, err = svc.repo.UpsertProgress(ctx, Progress{
			UserID:      learner.UserID,
			LessonID:    lsn.ID,
			Stars:       stars,
			CompletedAt: now,
			UpdatedAt:   now,
		})
		return err
	})
	if err != nil {
		return RecordResult{}, errors.Wrap(err, "saving progress")
	}

	res := RecordResult{Progress: progress, NewBadges: []Badge{}}

	var stats Stats
	statsErr := svc.bestEffort(ctx, func(ctx context.Context) (err error) {
		stats, err = svc.RecomputeStats(ctx, learner.UserID)
		return err
	})
	if statsErr != nil {
		svc.logger.Warn("recomputing stats", errors.Wrapf(statsErr, "user %s", learner.UserID))
		res.Degraded = multierr.Append(res.Degraded, errors.Wrap(statsErr, "recomputing stats"))
	} else {
		res.Stats = &stats
	}

	// grants that went through before a failed attempt are not reported by the retry
	var badges []Badge
	badgeErr := svc.bestEffort(ctx, func(ctx context.Context) error {
		granted, err := svc.awardLevelBadge(ctx, learner.UserID, lsn)
		badges = append(badges, granted...)
		return err
	})
	if badgeErr != nil {
		svc.logger.Warn("awarding badges", errors.Wrapf(badgeErr, "user %s", learner.UserID))
		res.Degraded = multierr.Append(res.Degraded, errors.Wrap(badgeErr, "awarding badges"))
	}
	if len(badges) > 0 {
		res.NewBadges = badges
	}
	return res, nil
}

func (svc *Service) recordGuest(learner Learner, lessonID int64, stars int) (RecordResult, error) {
	if learner.Shadow == nil {
		return RecordResult{}, errors.New("recording guest progress: no shadow store")
	}
	if _, err := learner.Shadow.Record(lessonID, stars); err != nil {
		return RecordResult{}, err
	}
	best := learner.Shadow.Entries()[lessonID]
	totals := learner.Shadow.Totals()
	now := svc.now()
	return RecordResult{
		Progress:  Progress{LessonID: lessonID, Stars: best, CompletedAt: now, UpdatedAt: now},
		Stats:     &totals,
		NewBadges: []Badge{},
	}, nil
}

// withRetries runs a critical step, retrying transient failures up to writeRetries times.
func (svc *Service) withRetries(ctx context.Context, what string, step func(ctx context.Context) error) error {
	var err error
	for attempt := 0; attempt <= svc.writeRetries; attempt++ {
		if attempt > 0 {
			svc.logger.Warn("retrying "+what, errors.Wrapf(err, "attempt %d", attempt))
		}
		if err = step(ctx); err == nil {
			return nil
		}
		if ctx.Err() != nil || isPermanent(err) {
			break
		}
	}
	return err
}

// isPermanent reports whether replaying the same write can never succeed.
func isPermanent(err error) bool {
	return errors.Cause(err) == ErrNotFound || core.IsValidationError(err)
}

// bestEffort runs step under the step timeout and retries it once.
func (svc *Service) bestEffort(ctx context.Context, step func(ctx context.Context) error) error {
	var err error
	for attempt := 0; attempt < 2; attempt++ {
		if ctx.Err() != nil {
			return multierr.Append(err, ctx.Err())
		}
		stepCtx, cancel := context.WithTimeout(ctx, svc.stepTimeout)
		err = step(stepCtx)
		cancel()
		if err == nil {
			return nil
		}
	}
	return err
}

// RecomputeStats rebuilds the stats snapshot of a user from all of their progress rows.
func (svc *Service) RecomputeStats(ctx context.Context, userID string) (Stats, error) {
	progress, err := svc.repo.QueryProgress(ctx, userID)
	if err != nil {
		return Stats{}, errors.Wrap(err, "querying progress")
	}
	stats, err := svc.repo.UpsertStats(ctx, ComputeStats(userID, progress, svc.now()))
	if err != nil {
		return Stats{}, errors.Wrap(err, "saving stats")
	}
	return stats, nil
}

// RebuildAllStats recomputes the snapshot of every learner. It returns the number of snapshots
// rebuilt along with the combined failures.
func (svc *Service) RebuildAllStats(ctx context.Context) (int, error) {
	ids, err := svc.repo.QueryLearnerIDs(ctx)
	if err != nil {
		return 0, errors.Wrap(err, "querying learners")
	}

	var (
		rebuilt int
		errs    error
	)
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return rebuilt, multierr.Append(errs, err)
		}
		if _, err := svc.RecomputeStats(ctx, id); err != nil {
			errs = multierr.Append(errs, errors.Wrapf(err, "user %s", id))
			continue
		}
		rebuilt++
	}
	return rebuilt, errs
}

// MigrateGuest replays the guest shadow store into the account of userID.
func (svc *Service) MigrateGuest(ctx context.Context, userID string, shadow *ShadowStore) (MigrationResult, error) {
	if shadow == nil {
		return MigrationResult{Migrated: []int64{}, Dropped: []int64{}, Failed: map[int64]error{}}, nil
	}
	res, err := shadow.Migrate(ctx, userID, svc)
	if err != nil {
		return res, err
	}
	for _, id := range res.Dropped {
		svc.logger.Info("dropping guest progress", "user", userID, "lesson", id)
	}
	for id, ferr := range res.Failed {
		svc.logger.Warn("migrating guest progress", errors.Wrapf(ferr, "user %s, lesson %d", userID, id))
	}
	return res, nil
}

// Attempt is a learner's submission for a lesson: answers keyed by quiz step ID.
type Attempt struct {
	Answers map[int64]string `json:"answers"`
}

// SubmitAttempt grades an attempt, records the earned stars and looks up the next lesson.
func (svc *Service) SubmitAttempt(ctx context.Context, learner Learner, lessonID int64, attempt Attempt) (AttemptResult, error) {
	detail, err := svc.Lesson(ctx, learner, lessonID)
	if err != nil {
		return AttemptResult{}, err
	}
	if detail.Lesson.IsLocked {
		err := errors.New("lesson is locked")
		return AttemptResult{}, core.NewValidationError(err, core.FieldError{Field: "lesson_id", Error: err.Error()})
	}

	correct, total, accuracy := GradeAttempt(detail.Steps, attempt.Answers)
	stars := StarsForAccuracy(accuracy)

	recorded, err := svc.RecordProgress(ctx, learner, lessonID, stars)
	if err != nil {
		return AttemptResult{}, err
	}

	next, err := svc.NextLesson(ctx, lessonID)
	if err != nil {
		svc.logger.Warn("finding next lesson", err)
		next = nil
	}

	xp := 0
	if stars > 0 {
		xp = detail.Lesson.XPReward
	}
	return AttemptResult{
		LessonID:   lessonID,
		Correct:    correct,
		Total:      total,
		Accuracy:   accuracy,
		Stars:      stars,
		XPEarned:   xp,
		Recorded:   recorded,
		NextLesson: next,
	}, nil
}
