package learning

import (
	"context"

	"github.com/go-playground/validator/v10"

	"github.com/kashur/backend/core"
)

type NewLetter struct {
	Letter              string `json:"letter" validate:"required,notblank,max=10"`
	Name                string `json:"name" validate:"required,notblank,max=50"`
	Pronunciation       string `json:"pronunciation" validate:"max=100"`
	ExampleWordKashmiri string `json:"example_word_kashmiri" validate:"max=100"`
	ExampleWordEnglish  string `json:"example_word_english" validate:"max=100"`
	Order               int    `json:"lesson_order" validate:"min=1"`
}

func (nl *NewLetter) Validate(validate *validator.Validate) error {
	nl.Letter = core.CleanString(nl.Letter)
	nl.Name = core.CleanString(nl.Name)
	nl.Pronunciation = core.CleanString(nl.Pronunciation)
	nl.ExampleWordKashmiri = core.CleanString(nl.ExampleWordKashmiri)
	nl.ExampleWordEnglish = core.CleanString(nl.ExampleWordEnglish)
	return validate.Struct(nl)
}

func (nl NewLetter) apply(ltr *Letter) {
	ltr.Letter = nl.Letter
	ltr.Name = nl.Name
	ltr.Pronunciation = nl.Pronunciation
	ltr.ExampleWordKashmiri = nl.ExampleWordKashmiri
	ltr.ExampleWordEnglish = nl.ExampleWordEnglish
	ltr.Order = nl.Order
}

// Alphabet returns every letter in teaching order. It needs no learner.
func (svc *Service) Alphabet(ctx context.Context) ([]Letter, error) {
	return svc.repo.QueryLetters(ctx)
}

func (svc *Service) GetLetter(ctx context.Context, id int64) (Letter, error) {
	return svc.repo.GetLetter(ctx, id)
}

func (svc *Service) CreateLetter(ctx context.Context, nl NewLetter) (Letter, error) {
	ltr := Letter{CreatedAt: svc.now()}
	nl.apply(&ltr)
	ltr, err := svc.repo.CreateLetter(ctx, ltr)
	return ltr, letterOrderErr(err)
}

func (svc *Service) UpdateLetter(ctx context.Context, id int64, nl NewLetter) (Letter, error) {
	ltr, err := svc.repo.GetLetter(ctx, id)
	if err != nil {
		return Letter{}, err
	}
	nl.apply(&ltr)
	ltr, err = svc.repo.UpdateLetter(ctx, ltr)
	return ltr, letterOrderErr(err)
}

func (svc *Service) DeleteLetter(ctx context.Context, id int64) error {
	return svc.repo.DeleteLetter(ctx, id)
}

func letterOrderErr(err error) error {
	if core.IsUniqueViolation(err) {
		return core.NewValidationError(ErrLetterOrderExists, core.FieldError{Field: "lesson_order", Error: ErrLetterOrderExists.Error()})
	}
	return err
}
