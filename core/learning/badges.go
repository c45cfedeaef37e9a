package learning

import (
	"context"

	"github.com/pkg/errors"
)

// AwardLevelBadge grants the level-complete badges of the level of lessonID when the user has
// stars on every lesson of that level. Only newly granted badges are returned: re-completing a
// level grants nothing.
func (svc *Service) AwardLevelBadge(ctx context.Context, userID string, lessonID int64) ([]Badge, error) {
	lsn, err := svc.repo.GetLesson(ctx, lessonID)
	if err != nil {
		return nil, err
	}
	return svc.awardLevelBadge(ctx, userID, lsn)
}

func (svc *Service) awardLevelBadge(ctx context.Context, userID string, lsn Lesson) ([]Badge, error) {
	badges, err := svc.repo.QueryBadges(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "querying badges")
	}
	var candidates []Badge
	for _, b := range badges {
		if b.Criteria.MatchesLevelComplete(lsn.LevelID) {
			candidates = append(candidates, b)
		}
	}
	if len(candidates) == 0 {
		return []Badge{}, nil
	}

	complete, err := svc.levelCompleted(ctx, userID, lsn.LevelID)
	if err != nil || !complete {
		return []Badge{}, err
	}

	now := svc.now()
	granted := make([]Badge, 0, len(candidates))
	for _, b := range candidates {
		inserted, err := svc.repo.GrantBadge(ctx, userID, b.ID, now)
		if err != nil {
			return granted, errors.Wrapf(err, "granting badge %d", b.ID)
		}
		if inserted {
			granted = append(granted, b)
		}
	}
	return granted, nil
}

// levelCompleted reports whether every lesson of the level has stars > 0 for the user.
// A level without lessons is never complete.
func (svc *Service) levelCompleted(ctx context.Context, userID string, levelID int64) (bool, error) {
	lessons, err := svc.repo.QueryLessons(ctx, levelID)
	if err != nil {
		return false, errors.Wrap(err, "querying lessons")
	}
	if len(lessons) == 0 {
		return false, nil
	}
	progress, err := svc.repo.QueryProgress(ctx, userID)
	if err != nil {
		return false, errors.Wrap(err, "querying progress")
	}
	stars := starsByLesson(progress)
	for _, lsn := range lessons {
		if stars[lsn.ID] <= 0 {
			return false, nil
		}
	}
	return true, nil
}
