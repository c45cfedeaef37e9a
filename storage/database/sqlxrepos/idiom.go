package sqlxrepos

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/kashur/backend/core"
	"github.com/kashur/backend/core/idiom"
)

const (
	idiomColumns      = "id, idiom_kashmiri, transliteration, translation, meaning, tags, audio_url, status, created_at, updated_at"
	suggestionColumns = "id, idiom_kashmiri, transliteration, translation, meaning, tags, submitter_name, submitter_email, notes, status, created_at"
)

type idiomRepository struct {
	repository
}

var _ idiom.Repository = (*idiomRepository)(nil)

func NewIdiomRepository(exec core.DBExecutor) *idiomRepository {
	return &idiomRepository{repository{exec: exec}}
}

func (repo idiomRepository) CreateIdiom(ctx context.Context, idm idiom.Idiom, exec ...core.DBExecutor) (idiom.Idiom, error) {
	idm.ID = uuid.New().String()
	idm.CreatedAt = idm.CreatedAt.UTC()
	idm.UpdatedAt = idm.UpdatedAt.UTC()
	if idm.Tags == nil {
		idm.Tags = core.StringList{}
	}
	q := `INSERT INTO idioms (` + idiomColumns + `)
		VALUES (:id, :idiom_kashmiri, :transliteration, :translation, :meaning, :tags, :audio_url, :status, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, repo.getExec(exec), q, idm); err != nil {
		return idiom.Idiom{}, errors.Wrap(err, "inserting idiom")
	}
	return idm, nil
}

func (repo idiomRepository) QueryIdioms(ctx context.Context, filter *idiom.SearchFilter, exec ...core.DBExecutor) ([]idiom.Idiom, error) {
	var (
		conds []string
		args  []interface{}
	)
	if filter != nil {
		if filter.Query != "" {
			val := "%" + strings.ToLower(filter.Query) + "%"
			conds = append(conds, `(LOWER(idiom_kashmiri) LIKE ? OR LOWER(transliteration) LIKE ?
				OR LOWER(translation) LIKE ? OR LOWER(meaning) LIKE ?)`)
			args = append(args, val, val, val, val)
		}
		// idioms having any of the tags
		if len(filter.Tags) > 0 {
			tagConds := make([]string, 0, len(filter.Tags))
			for _, tag := range filter.Tags {
				tagConds = append(tagConds, "tags LIKE ?")
				args = append(args, jsonElement(tag))
			}
			conds = append(conds, "("+strings.Join(tagConds, " OR ")+")")
		}
	}

	q := "SELECT " + idiomColumns + " FROM idioms" + where(conds) + " ORDER BY created_at DESC, id"
	idioms := make([]idiom.Idiom, 0)
	if err := selectAll(ctx, repo.getExec(exec), &idioms, q, args...); err != nil {
		return nil, errors.Wrap(err, "querying idioms")
	}
	return idioms, nil
}

func (repo idiomRepository) GetIdiom(ctx context.Context, id string, exec ...core.DBExecutor) (idiom.Idiom, error) {
	if _, err := uuid.Parse(id); err != nil {
		return idiom.Idiom{}, idiom.ErrNotFound
	}
	var idm idiom.Idiom
	if err := get(ctx, repo.getExec(exec), &idm, "SELECT "+idiomColumns+" FROM idioms WHERE id = ?", id); err != nil {
		return idiom.Idiom{}, trapNoRowsErr(err, idiom.ErrNotFound, "finding idiom")
	}
	return idm, nil
}

func (repo idiomRepository) UpdateIdiom(ctx context.Context, idm idiom.Idiom, exec ...core.DBExecutor) (idiom.Idiom, error) {
	idm.UpdatedAt = idm.UpdatedAt.UTC()
	if idm.Tags == nil {
		idm.Tags = core.StringList{}
	}
	q := `UPDATE idioms SET idiom_kashmiri = :idiom_kashmiri, transliteration = :transliteration, translation = :translation,
		meaning = :meaning, tags = :tags, audio_url = :audio_url, status = :status, updated_at = :updated_at
		WHERE id = :id`
	res, err := sqlx.NamedExecContext(ctx, repo.getExec(exec), q, idm)
	if err != nil {
		return idiom.Idiom{}, errors.Wrap(err, "updating idiom")
	}
	if err = checkAffected(res, idiom.ErrNotFound); err != nil {
		return idiom.Idiom{}, err
	}
	return idm, nil
}

func (repo idiomRepository) DeleteIdiom(ctx context.Context, id string, exec ...core.DBExecutor) error {
	if _, err := uuid.Parse(id); err != nil {
		return idiom.ErrNotFound
	}
	res, err := execute(ctx, repo.getExec(exec), "DELETE FROM idioms WHERE id = ?", id)
	if err != nil {
		return errors.Wrap(err, "deleting idiom")
	}
	return checkAffected(res, idiom.ErrNotFound)
}

func (repo idiomRepository) CreateSuggestion(ctx context.Context, sug idiom.Suggestion, exec ...core.DBExecutor) (idiom.Suggestion, error) {
	sug.ID = uuid.New().String()
	sug.CreatedAt = sug.CreatedAt.UTC()
	if sug.Tags == nil {
		sug.Tags = core.StringList{}
	}
	q := `INSERT INTO suggestions (` + suggestionColumns + `)
		VALUES (:id, :idiom_kashmiri, :transliteration, :translation, :meaning, :tags, :submitter_name, :submitter_email,
			:notes, :status, :created_at)`
	if _, err := sqlx.NamedExecContext(ctx, repo.getExec(exec), q, sug); err != nil {
		return idiom.Suggestion{}, errors.Wrap(err, "inserting suggestion")
	}
	return sug, nil
}

func (repo idiomRepository) QuerySuggestions(ctx context.Context, exec ...core.DBExecutor) ([]idiom.Suggestion, error) {
	sugs := make([]idiom.Suggestion, 0)
	q := "SELECT " + suggestionColumns + " FROM suggestions ORDER BY created_at, id"
	if err := selectAll(ctx, repo.getExec(exec), &sugs, q); err != nil {
		return nil, errors.Wrap(err, "querying suggestions")
	}
	return sugs, nil
}

func (repo idiomRepository) GetSuggestion(ctx context.Context, id string, exec ...core.DBExecutor) (idiom.Suggestion, error) {
	if _, err := uuid.Parse(id); err != nil {
		return idiom.Suggestion{}, idiom.ErrSuggestionNotFound
	}
	var sug idiom.Suggestion
	if err := get(ctx, repo.getExec(exec), &sug, "SELECT "+suggestionColumns+" FROM suggestions WHERE id = ?", id); err != nil {
		return idiom.Suggestion{}, trapNoRowsErr(err, idiom.ErrSuggestionNotFound, "finding suggestion")
	}
	return sug, nil
}

func (repo idiomRepository) DeleteSuggestion(ctx context.Context, id string, exec ...core.DBExecutor) error {
	if _, err := uuid.Parse(id); err != nil {
		return idiom.ErrSuggestionNotFound
	}
	res, err := execute(ctx, repo.getExec(exec), "DELETE FROM suggestions WHERE id = ?", id)
	if err != nil {
		return errors.Wrap(err, "deleting suggestion")
	}
	return checkAffected(res, idiom.ErrSuggestionNotFound)
}
