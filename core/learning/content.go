package learning

import (
	"context"
	"encoding/json"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx/types"
	"github.com/pkg/errors"

	"github.com/kashur/backend/core"
)

type NewLevel struct {
	Name             string `json:"name" validate:"required,notblank,max=100"`
	Description      string `json:"description" validate:"max=1000"`
	Order            int    `json:"level_order" validate:"min=1"`
	MinStarsRequired int    `json:"min_stars_required" validate:"min=0"`
}

func (nl *NewLevel) Validate(validate *validator.Validate) error {
	nl.Name = core.CleanString(nl.Name)
	nl.Description = core.CleanString(nl.Description)
	return validate.Struct(nl)
}

type NewLesson struct {
	LevelID     int64  `json:"level_id" validate:"required"`
	Title       string `json:"title" validate:"required,notblank,max=150"`
	Description string `json:"description" validate:"max=1000"`
	Order       int    `json:"lesson_order" validate:"min=1"`
	XPReward    int    `json:"xp_reward" validate:"min=0"`
	ComingSoon  bool   `json:"coming_soon"`
}

func (nl *NewLesson) Validate(validate *validator.Validate) error {
	nl.Title = core.CleanString(nl.Title)
	nl.Description = core.CleanString(nl.Description)
	return validate.Struct(nl)
}

type NewStep struct {
	LessonID int64           `json:"lesson_id" validate:"required"`
	Type     StepType        `json:"step_type" validate:"required,steptype"`
	Order    int             `json:"step_order" validate:"min=1"`
	Content  json.RawMessage `json:"content" validate:"required"`
}

func (ns *NewStep) Validate(validate *validator.Validate) error {
	if err := validate.Struct(ns); err != nil {
		return err
	}
	return ValidateStepContent(ns.Type, ns.Content)
}

type NewBadge struct {
	Name        string        `json:"name" validate:"required,notblank,max=100"`
	Description string        `json:"description" validate:"max=500"`
	IconURL     string        `json:"icon_url" validate:"omitempty,url"`
	Criteria    BadgeCriteria `json:"criteria"`
}

func (nb *NewBadge) Validate(validate *validator.Validate) error {
	nb.Name = core.CleanString(nb.Name)
	nb.Description = core.CleanString(nb.Description)
	nb.IconURL = core.CleanString(nb.IconURL)
	if err := validate.Struct(nb); err != nil {
		return err
	}
	if nb.Criteria.Type != CriteriaLevelComplete || nb.Criteria.LevelID <= 0 {
		err := errors.Errorf("criteria must be {\"type\": %q, \"level_id\": <level ID>}", CriteriaLevelComplete)
		return core.NewValidationError(err, core.FieldError{Field: "criteria", Error: err.Error()})
	}
	return nil
}

// ValidateStepContent checks the type-specific payload of a step:
// teach needs text, a quiz needs a question, 2 options or more and a correct answer among them,
// speak needs a prompt text.
func ValidateStepContent(typ StepType, content []byte) error {
	invalid := func(msg string) error {
		return core.NewValidationError(errors.New(msg), core.FieldError{Field: "content", Error: msg})
	}

	switch {
	case typ == StepTeach:
		var c TeachContent
		if err := json.Unmarshal(content, &c); err != nil {
			return invalid("teach content must be a JSON object")
		}
		if core.CleanString(c.Text) == "" {
			return invalid("teach content needs a text")
		}
	case typ.IsQuiz():
		var c QuizContent
		if err := json.Unmarshal(content, &c); err != nil {
			return invalid("quiz content must be a JSON object")
		}
		if core.CleanString(c.Question) == "" {
			return invalid("quiz content needs a question")
		}
		options := core.CleanStrings(c.Options)
		if len(options) < 2 {
			return invalid("quiz content needs at least 2 options")
		}
		found := false
		for _, opt := range options {
			if opt == c.CorrectAnswer {
				found = true
				break
			}
		}
		if !found {
			return invalid("quiz correct_answer must be one of the options")
		}
	case typ == StepSpeak:
		var c SpeakContent
		if err := json.Unmarshal(content, &c); err != nil {
			return invalid("speak content must be a JSON object")
		}
		if core.CleanString(c.Text) == "" {
			return invalid("speak content needs a prompt text")
		}
	default:
		return invalid("unknown step type")
	}
	return nil
}

// Authoring

func (svc *Service) Levels(ctx context.Context) ([]Level, error) {
	return svc.repo.QueryLevels(ctx)
}

func (svc *Service) GetLevel(ctx context.Context, id int64) (Level, error) {
	return svc.repo.GetLevel(ctx, id)
}

func (svc *Service) CreateLevel(ctx context.Context, nl NewLevel) (Level, error) {
	lvl, err := svc.repo.CreateLevel(ctx, Level{
		Name:             nl.Name,
		Description:      nl.Description,
		Order:            nl.Order,
		MinStarsRequired: nl.MinStarsRequired,
		CreatedAt:        svc.now(),
	})
	return lvl, levelOrderErr(err)
}

func (svc *Service) UpdateLevel(ctx context.Context, id int64, nl NewLevel) (Level, error) {
	lvl, err := svc.repo.GetLevel(ctx, id)
	if err != nil {
		return Level{}, err
	}
	lvl.Name = nl.Name
	lvl.Description = nl.Description
	lvl.Order = nl.Order
	lvl.MinStarsRequired = nl.MinStarsRequired
	lvl, err = svc.repo.UpdateLevel(ctx, lvl)
	return lvl, levelOrderErr(err)
}

func (svc *Service) DeleteLevel(ctx context.Context, id int64) error {
	return svc.repo.DeleteLevel(ctx, id)
}

func levelOrderErr(err error) error {
	if core.IsUniqueViolation(err) {
		return core.NewValidationError(ErrLevelOrderExists, core.FieldError{Field: "level_order", Error: ErrLevelOrderExists.Error()})
	}
	return err
}

func (svc *Service) Lessons(ctx context.Context, levelID int64) ([]Lesson, error) {
	return svc.repo.QueryLessons(ctx, levelID)
}

func (svc *Service) GetLesson(ctx context.Context, id int64) (Lesson, error) {
	return svc.repo.GetLesson(ctx, id)
}

func (svc *Service) CreateLesson(ctx context.Context, nl NewLesson) (Lesson, error) {
	if err := svc.checkLevel(ctx, nl.LevelID); err != nil {
		return Lesson{}, err
	}
	lsn, err := svc.repo.CreateLesson(ctx, Lesson{
		LevelID:     nl.LevelID,
		Title:       nl.Title,
		Description: nl.Description,
		Order:       nl.Order,
		XPReward:    nl.XPReward,
		ComingSoon:  nl.ComingSoon,
		CreatedAt:   svc.now(),
	})
	return lsn, lessonOrderErr(err)
}

func (svc *Service) UpdateLesson(ctx context.Context, id int64, nl NewLesson) (Lesson, error) {
	lsn, err := svc.repo.GetLesson(ctx, id)
	if err != nil {
		return Lesson{}, err
	}
	if err = svc.checkLevel(ctx, nl.LevelID); err != nil {
		return Lesson{}, err
	}
	lsn.LevelID = nl.LevelID
	lsn.Title = nl.Title
	lsn.Description = nl.Description
	lsn.Order = nl.Order
	lsn.XPReward = nl.XPReward
	lsn.ComingSoon = nl.ComingSoon
	lsn, err = svc.repo.UpdateLesson(ctx, lsn)
	return lsn, lessonOrderErr(err)
}

func (svc *Service) DeleteLesson(ctx context.Context, id int64) error {
	return svc.repo.DeleteLesson(ctx, id)
}

func (svc *Service) checkLevel(ctx context.Context, levelID int64) error {
	if _, err := svc.repo.GetLevel(ctx, levelID); err != nil {
		if errors.Cause(err) == ErrNotFound {
			return core.NewValidationError(ErrUnknownLevel, core.FieldError{Field: "level_id", Error: ErrUnknownLevel.Error()})
		}
		return errors.Wrap(err, "finding level")
	}
	return nil
}

func lessonOrderErr(err error) error {
	if core.IsUniqueViolation(err) {
		return core.NewValidationError(ErrLessonOrderExists, core.FieldError{Field: "lesson_order", Error: ErrLessonOrderExists.Error()})
	}
	return err
}

func (svc *Service) Steps(ctx context.Context, lessonID int64) ([]Step, error) {
	return svc.repo.QuerySteps(ctx, lessonID)
}

func (svc *Service) GetStep(ctx context.Context, id int64) (Step, error) {
	return svc.repo.GetStep(ctx, id)
}

func (svc *Service) CreateStep(ctx context.Context, ns NewStep) (Step, error) {
	if err := svc.checkLesson(ctx, ns.LessonID); err != nil {
		return Step{}, err
	}
	return svc.repo.CreateStep(ctx, Step{
		LessonID:  ns.LessonID,
		Type:      ns.Type,
		Order:     ns.Order,
		Content:   types.JSONText(ns.Content),
		CreatedAt: svc.now(),
	})
}

func (svc *Service) UpdateStep(ctx context.Context, id int64, ns NewStep) (Step, error) {
	step, err := svc.repo.GetStep(ctx, id)
	if err != nil {
		return Step{}, err
	}
	if err = svc.checkLesson(ctx, ns.LessonID); err != nil {
		return Step{}, err
	}
	step.LessonID = ns.LessonID
	step.Type = ns.Type
	step.Order = ns.Order
	step.Content = types.JSONText(ns.Content)
	return svc.repo.UpdateStep(ctx, step)
}

func (svc *Service) DeleteStep(ctx context.Context, id int64) error {
	return svc.repo.DeleteStep(ctx, id)
}

func (svc *Service) checkLesson(ctx context.Context, lessonID int64) error {
	if _, err := svc.repo.GetLesson(ctx, lessonID); err != nil {
		if errors.Cause(err) == ErrNotFound {
			return core.NewValidationError(ErrUnknownLesson, core.FieldError{Field: "lesson_id", Error: ErrUnknownLesson.Error()})
		}
		return errors.Wrap(err, "finding lesson")
	}
	return nil
}

func (svc *Service) Badges(ctx context.Context) ([]Badge, error) {
	return svc.repo.QueryBadges(ctx)
}

func (svc *Service) GetBadge(ctx context.Context, id int64) (Badge, error) {
	return svc.repo.GetBadge(ctx, id)
}

func (svc *Service) CreateBadge(ctx context.Context, nb NewBadge) (Badge, error) {
	if err := svc.checkBadgeLevel(ctx, nb.Criteria); err != nil {
		return Badge{}, err
	}
	return svc.repo.CreateBadge(ctx, Badge{
		Name:        nb.Name,
		Description: nb.Description,
		IconURL:     nb.IconURL,
		Criteria:    nb.Criteria,
		CreatedAt:   svc.now(),
	})
}

func (svc *Service) UpdateBadge(ctx context.Context, id int64, nb NewBadge) (Badge, error) {
	badge, err := svc.repo.GetBadge(ctx, id)
	if err != nil {
		return Badge{}, err
	}
	if err = svc.checkBadgeLevel(ctx, nb.Criteria); err != nil {
		return Badge{}, err
	}
	badge.Name = nb.Name
	badge.Description = nb.Description
	badge.IconURL = nb.IconURL
	badge.Criteria = nb.Criteria
	return svc.repo.UpdateBadge(ctx, badge)
}

func (svc *Service) DeleteBadge(ctx context.Context, id int64) error {
	return svc.repo.DeleteBadge(ctx, id)
}

func (svc *Service) checkBadgeLevel(ctx context.Context, criteria BadgeCriteria) error {
	if _, err := svc.repo.GetLevel(ctx, criteria.LevelID); err != nil {
		if errors.Cause(err) == ErrNotFound {
			return core.NewValidationError(ErrUnknownLevel, core.FieldError{Field: "criteria", Error: ErrUnknownLevel.Error()})
		}
		return errors.Wrap(err, "finding level")
	}
	return nil
}
