package idiom

import (
	"context"
	"net/mail"
	"sort"
	"time"

	"github.com/pkg/errors"

	"github.com/kashur/backend/core"
)

var (
	// errors
	ErrNotFound           = errors.New("idiom not found")
	ErrSuggestionNotFound = errors.New("suggestion not found")
)

type (
	Repository interface {
		CreateIdiom(ctx context.Context, idm Idiom, exec ...core.DBExecutor) (Idiom, error)
		// QueryIdioms returns idioms newest first.
		// SearchFilter.Query does a case-insensitive match on the kashmiri text, transliteration, translation or meaning;
		// SearchFilter.Tags keeps idioms having any of the tags.
		QueryIdioms(ctx context.Context, filter *SearchFilter, exec ...core.DBExecutor) ([]Idiom, error)
		GetIdiom(ctx context.Context, id string, exec ...core.DBExecutor) (Idiom, error)
		UpdateIdiom(ctx context.Context, idm Idiom, exec ...core.DBExecutor) (Idiom, error)
		DeleteIdiom(ctx context.Context, id string, exec ...core.DBExecutor) error

		CreateSuggestion(ctx context.Context, sug Suggestion, exec ...core.DBExecutor) (Suggestion, error)
		// QuerySuggestions returns suggestions oldest first.
		QuerySuggestions(ctx context.Context, exec ...core.DBExecutor) ([]Suggestion, error)
		GetSuggestion(ctx context.Context, id string, exec ...core.DBExecutor) (Suggestion, error)
		DeleteSuggestion(ctx context.Context, id string, exec ...core.DBExecutor) error
	}

	Service interface {
		Search(ctx context.Context, filter *SearchFilter) ([]Idiom, error)
		Tags(ctx context.Context) ([]string, error)
		GetByID(ctx context.Context, id string) (Idiom, error)
		Create(ctx context.Context, ni NewIdiom) (Idiom, error)
		Update(ctx context.Context, id string, ni NewIdiom) (Idiom, error)
		Delete(ctx context.Context, id string) error

		Suggest(ctx context.Context, ns NewSuggestion) (Suggestion, error)
		Suggestions(ctx context.Context) ([]Suggestion, error)
		ApproveSuggestion(ctx context.Context, id string) (Idiom, error)
		RejectSuggestion(ctx context.Context, id string) error
	}

	service struct {
		db      core.DB
		repo    Repository
		mailSvc core.EmailService
	}
)

var _ Service = (*service)(nil)

func NewService(db core.DB, repo Repository, mailSvc core.EmailService) Service {
	return &service{db: db, repo: repo, mailSvc: mailSvc}
}

func (svc *service) Search(ctx context.Context, filter *SearchFilter) ([]Idiom, error) {
	if filter != nil {
		filter.Clean()
	}
	return svc.repo.QueryIdioms(ctx, filter)
}

// Tags returns the sorted distinct tags of all idioms.
func (svc *service) Tags(ctx context.Context) ([]string, error) {
	idioms, err := svc.repo.QueryIdioms(ctx, nil)
	if err != nil {
		return nil, errors.Wrap(err, "querying idioms")
	}
	set := make(map[string]struct{})
	for _, idm := range idioms {
		for _, tag := range idm.Tags {
			set[tag] = struct{}{}
		}
	}
	tags := make([]string, 0, len(set))
	for tag := range set {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags, nil
}

func (svc *service) GetByID(ctx context.Context, id string) (Idiom, error) {
	return svc.repo.GetIdiom(ctx, id)
}

func (svc *service) Create(ctx context.Context, ni NewIdiom) (Idiom, error) {
	now := time.Now().UTC()
	return svc.repo.CreateIdiom(ctx, Idiom{
		Kashmiri:        ni.Kashmiri,
		Transliteration: ni.Transliteration,
		Translation:     ni.Translation,
		Meaning:         ni.Meaning,
		Tags:            ni.Tags,
		AudioURL:        ni.AudioURL,
		Status:          StatusApproved,
		CreatedAt:       now,
		UpdatedAt:       now,
	})
}

func (svc *service) Update(ctx context.Context, id string, ni NewIdiom) (Idiom, error) {
	idm, err := svc.repo.GetIdiom(ctx, id)
	if err != nil {
		return Idiom{}, err
	}
	idm.Kashmiri = ni.Kashmiri
	idm.Transliteration = ni.Transliteration
	idm.Translation = ni.Translation
	idm.Meaning = ni.Meaning
	idm.Tags = ni.Tags
	idm.AudioURL = ni.AudioURL
	idm.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateIdiom(ctx, idm)
}

func (svc *service) Delete(ctx context.Context, id string) error {
	return svc.repo.DeleteIdiom(ctx, id)
}

func (svc *service) Suggest(ctx context.Context, ns NewSuggestion) (Suggestion, error) {
	sug, err := svc.repo.CreateSuggestion(ctx, Suggestion{
		Kashmiri:        ns.Kashmiri,
		Transliteration: ns.Transliteration,
		Translation:     ns.Translation,
		Meaning:         ns.Meaning,
		Tags:            ns.Tags,
		SubmitterName:   ns.SubmitterName,
		SubmitterEmail:  ns.SubmitterEmail,
		Notes:           ns.Notes,
		Status:          StatusPending,
		CreatedAt:       time.Now().UTC(),
	})
	if err != nil {
		return Suggestion{}, errors.Wrap(err, "creating suggestion")
	}

	if sug.SubmitterEmail != "" {
		svc.mailSvc.SendMessages(&core.EmailMessage{
			To:           []mail.Address{{Name: sug.SubmitterName, Address: sug.SubmitterEmail}},
			Subject:      "Thank you for your suggestion",
			TemplateName: "suggestion_received",
			TemplateData: map[string]string{"Name": sug.SubmitterName, "Idiom": sug.Kashmiri},
		})
	}
	return sug, nil
}

func (svc *service) Suggestions(ctx context.Context) ([]Suggestion, error) {
	return svc.repo.QuerySuggestions(ctx)
}

// ApproveSuggestion publishes the suggestion as an approved idiom and removes it from the review queue.
func (svc *service) ApproveSuggestion(ctx context.Context, id string) (Idiom, error) {
	var idm Idiom
	err := core.WithinTx(ctx, svc.db, func(tx core.DBExecutor) error {
		sug, err := svc.repo.GetSuggestion(ctx, id, tx)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		idm = sug.Idiom()
		idm.CreatedAt = now
		idm.UpdatedAt = now
		if idm, err = svc.repo.CreateIdiom(ctx, idm, tx); err != nil {
			return errors.Wrap(err, "creating idiom")
		}
		return svc.repo.DeleteSuggestion(ctx, id, tx)
	})
	if err != nil {
		return Idiom{}, err
	}
	return idm, nil
}

func (svc *service) RejectSuggestion(ctx context.Context, id string) error {
	return svc.repo.DeleteSuggestion(ctx, id)
}
