package idiom

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/kashur/backend/core"
)

// Statuses
const (
	StatusApproved = "approved"
	StatusPending  = "pending"
	StatusRejected = "rejected"
)

type Idiom struct {
	ID              string          `json:"id" db:"id"`
	Kashmiri        string          `json:"idiom_kashmiri" db:"idiom_kashmiri"`
	Transliteration string          `json:"transliteration" db:"transliteration"`
	Translation     string          `json:"translation" db:"translation"`
	Meaning         string          `json:"meaning" db:"meaning"`
	Tags            core.StringList `json:"tags" db:"tags"`
	AudioURL        string          `json:"audio_url,omitempty" db:"audio_url"`
	Status          string          `json:"status" db:"status"`
	CreatedAt       time.Time       `json:"created_at" db:"created_at"` // UTC
	UpdatedAt       time.Time       `json:"updated_at" db:"updated_at"` // UTC
}

type Suggestion struct {
	ID              string          `json:"id" db:"id"`
	Kashmiri        string          `json:"idiom_kashmiri" db:"idiom_kashmiri"`
	Transliteration string          `json:"transliteration" db:"transliteration"`
	Translation     string          `json:"translation" db:"translation"`
	Meaning         string          `json:"meaning" db:"meaning"`
	Tags            core.StringList `json:"tags" db:"tags"`
	SubmitterName   string          `json:"submitter_name" db:"submitter_name"`
	SubmitterEmail  string          `json:"submitter_email" db:"submitter_email"`
	Notes           string          `json:"notes" db:"notes"`
	Status          string          `json:"status" db:"status"`
	CreatedAt       time.Time       `json:"created_at" db:"created_at"` // UTC
}

// Idiom returns the approved Idiom a Suggestion turns into.
func (s Suggestion) Idiom() Idiom {
	return Idiom{
		Kashmiri:        s.Kashmiri,
		Transliteration: s.Transliteration,
		Translation:     s.Translation,
		Meaning:         s.Meaning,
		Tags:            s.Tags,
		Status:          StatusApproved,
	}
}

// NewIdiom contains information needed to create or replace an Idiom.
type NewIdiom struct {
	Kashmiri        string   `json:"idiom_kashmiri" validate:"required,notblank,max=500"`
	Transliteration string   `json:"transliteration" validate:"required,notblank,max=500"`
	Translation     string   `json:"translation" validate:"required,notblank,max=1000"`
	Meaning         string   `json:"meaning" validate:"required,notblank,max=2000"`
	Tags            []string `json:"tags" validate:"max=20,dive,max=40"`
	AudioURL        string   `json:"audio_url" validate:"omitempty,url"`
}

func (ni *NewIdiom) Clean() {
	ni.Kashmiri = core.CleanString(ni.Kashmiri)
	ni.Transliteration = core.CleanString(ni.Transliteration)
	ni.Translation = core.CleanString(ni.Translation)
	ni.Meaning = core.CleanString(ni.Meaning)
	ni.Tags = cleanTags(ni.Tags)
	ni.AudioURL = core.CleanString(ni.AudioURL)
}

func (ni *NewIdiom) Validate(validate *validator.Validate) error {
	ni.Clean()
	return validate.Struct(ni)
}

// NewSuggestion is an idiom submitted by a visitor for review.
type NewSuggestion struct {
	NewIdiom
	SubmitterName  string `json:"submitter_name" validate:"max=100"`
	SubmitterEmail string `json:"submitter_email" validate:"omitempty,email"`
	Notes          string `json:"notes" validate:"max=2000"`
}

func (ns *NewSuggestion) Validate(validate *validator.Validate) error {
	ns.NewIdiom.Clean()
	ns.SubmitterName = core.CleanString(ns.SubmitterName)
	ns.SubmitterEmail = core.CleanString(ns.SubmitterEmail, true /* lower */)
	ns.Notes = core.CleanString(ns.Notes)
	return validate.Struct(ns)
}

type SearchFilter struct {
	Query string   `query:"q"`
	Tags  []string `query:"tag"`
}

func (sf *SearchFilter) Clean() {
	sf.Query = core.CleanString(sf.Query)
	sf.Tags = cleanTags(sf.Tags)
}

func (sf *SearchFilter) IsEmpty() bool {
	return sf.Query == "" && len(sf.Tags) == 0
}

// cleanTags trims & lowers tags, dropping empty ones and duplicates while keeping their order.
func cleanTags(tags []string) []string {
	cleaned := core.CleanStrings(tags, true /* lower */)
	seen := make(map[string]struct{}, len(cleaned))
	out := make([]string, 0, len(cleaned))
	for _, tag := range cleaned {
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	return out
}
