package learning

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/jmoiron/sqlx/types"
	"github.com/pkg/errors"
)

const MaxStars = 3

type StepType string

// Step types
const (
	StepTeach    StepType = "teach"
	StepQuizEasy StepType = "quiz_easy"
	StepQuizHard StepType = "quiz_hard"
	StepSpeak    StepType = "speak"
)

var StepTypes = []StepType{StepTeach, StepQuizEasy, StepQuizHard, StepSpeak}

func (st StepType) IsQuiz() bool {
	return st == StepQuizEasy || st == StepQuizHard
}

func (st StepType) IsValid() bool {
	for _, known := range StepTypes {
		if st == known {
			return true
		}
	}
	return false
}

// Badge criteria types
const CriteriaLevelComplete = "level_complete"

// Learner is the explicit session context of every engine call.
// An empty UserID is a guest whose progress lives in Shadow only.
type Learner struct {
	UserID string
	Shadow *ShadowStore
}

func (l Learner) IsGuest() bool { return l.UserID == "" }

type Level struct {
	ID               int64     `json:"id" db:"id"`
	Name             string    `json:"name" db:"name"`
	Description      string    `json:"description" db:"description"`
	Order            int       `json:"level_order" db:"level_order"`
	MinStarsRequired int       `json:"min_stars_required" db:"min_stars_required"`
	CreatedAt        time.Time `json:"created_at" db:"created_at"` // UTC
}

type Lesson struct {
	ID          int64     `json:"id" db:"id"`
	LevelID     int64     `json:"level_id" db:"level_id"`
	Title       string    `json:"title" db:"title"`
	Description string    `json:"description" db:"description"`
	Order       int       `json:"lesson_order" db:"lesson_order"`
	XPReward    int       `json:"xp_reward" db:"xp_reward"`
	ComingSoon  bool      `json:"coming_soon" db:"coming_soon"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"` // UTC
}

type Step struct {
	ID        int64          `json:"id" db:"id"`
	LessonID  int64          `json:"lesson_id" db:"lesson_id"`
	Type      StepType       `json:"step_type" db:"step_type"`
	Order     int            `json:"step_order" db:"step_order"`
	Content   types.JSONText `json:"content" db:"content"`
	CreatedAt time.Time      `json:"created_at" db:"created_at"` // UTC
}

type (
	TeachContent struct {
		Title           string `json:"title"`
		Text            string `json:"text"`
		Kashmiri        string `json:"kashmiri"`
		Transliteration string `json:"transliteration"`
		AudioURL        string `json:"audio_url"`
	}

	QuizContent struct {
		Question      string   `json:"question"`
		Options       []string `json:"options"`
		CorrectAnswer string   `json:"correct_answer"`
	}

	SpeakContent struct {
		Title           string `json:"title"`
		Text            string `json:"text"`
		Kashmiri        string `json:"kashmiri"`
		Transliteration string `json:"transliteration"`
		CorrectAnswer   string `json:"correct_answer"`
	}
)

// Progress is the best star count of a user for a lesson.
type Progress struct {
	UserID      string    `json:"user_id" db:"user_id"`
	LessonID    int64     `json:"lesson_id" db:"lesson_id"`
	Stars       int       `json:"stars" db:"stars"`
	CompletedAt time.Time `json:"completed_at" db:"completed_at"` // UTC
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`     // UTC
}

// Stats is the materialized aggregate of a user's Progress rows.
type Stats struct {
	UserID           string     `json:"user_id,omitempty" db:"user_id"`
	TotalStars       int        `json:"total_stars" db:"total_stars"`
	LessonsCompleted int        `json:"lessons_completed" db:"lessons_completed"`
	LastActivityDate *time.Time `json:"last_activity_date" db:"last_activity_date"` // UTC
	UpdatedAt        time.Time  `json:"updated_at" db:"updated_at"`                 // UTC
}

type BadgeCriteria struct {
	Type    string `json:"type"`
	LevelID int64  `json:"level_id,omitempty"`
}

func (bc BadgeCriteria) Value() (driver.Value, error) {
	b, err := json.Marshal(bc)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (bc *BadgeCriteria) Scan(src interface{}) error {
	var data []byte
	switch v := src.(type) {
	case nil:
		*bc = BadgeCriteria{}
		return nil
	case string:
		data = []byte(v)
	case []byte:
		data = v
	default:
		return errors.Errorf("BadgeCriteria: unsupported type %T", src)
	}
	if err := json.Unmarshal(data, bc); err != nil {
		// unknown criteria never match
		*bc = BadgeCriteria{}
	}
	return nil
}

// MatchesLevelComplete reports whether the criteria is "all lessons of level `levelID` completed".
func (bc BadgeCriteria) MatchesLevelComplete(levelID int64) bool {
	return bc.Type == CriteriaLevelComplete && bc.LevelID == levelID
}

type Badge struct {
	ID          int64         `json:"id" db:"id"`
	Name        string        `json:"name" db:"name"`
	Description string        `json:"description" db:"description"`
	IconURL     string        `json:"icon_url" db:"icon_url"`
	Criteria    BadgeCriteria `json:"criteria" db:"criteria"`
	CreatedAt   time.Time     `json:"created_at" db:"created_at"` // UTC
}

// Letter is an entry of the alphabet table, independent from the lesson path.
type Letter struct {
	ID                  int64     `json:"id" db:"id"`
	Letter              string    `json:"letter" db:"letter"`
	Name                string    `json:"name" db:"name"`
	Pronunciation       string    `json:"pronunciation" db:"pronunciation"`
	ExampleWordKashmiri string    `json:"example_word_kashmiri" db:"example_word_kashmiri"`
	ExampleWordEnglish  string    `json:"example_word_english" db:"example_word_english"`
	Order               int       `json:"lesson_order" db:"lesson_order"`
	CreatedAt           time.Time `json:"created_at" db:"created_at"` // UTC
}

type UserBadge struct {
	UserID    string    `json:"-" db:"user_id"`
	BadgeID   int64     `json:"badge_id" db:"badge_id"`
	AwardedAt time.Time `json:"awarded_at" db:"awarded_at"` // UTC
	Badge     Badge     `json:"badge" db:"badge"`
}

type LeaderboardEntry struct {
	Rank             int    `json:"rank" db:"-"`
	UserID           string `json:"user_id" db:"user_id"`
	Username         string `json:"username" db:"username"`
	Name             string `json:"name" db:"name"`
	TotalStars       int    `json:"total_stars" db:"total_stars"`
	LessonsCompleted int    `json:"lessons_completed" db:"lessons_completed"`
}

// LessonView is a Lesson annotated for a learner.
type LessonView struct {
	Lesson
	UserStars int  `json:"user_stars"`
	IsLocked  bool `json:"is_locked"`
}

// LevelView is a Level with its annotated lessons.
type LevelView struct {
	Level
	IsLocked bool         `json:"is_locked"`
	Lessons  []LessonView `json:"lessons"`
}

type LessonDetail struct {
	Lesson LessonView `json:"lesson"`
	Steps  []Step     `json:"steps"`
}

// RecordResult is the outcome of a progress write.
// Degraded holds the failures of the best-effort steps that followed a successful write.
type RecordResult struct {
	Progress  Progress `json:"progress"`
	Stats     *Stats   `json:"stats,omitempty"`
	NewBadges []Badge  `json:"new_badges"`
	Degraded  error    `json:"-"`
}

type AttemptResult struct {
	LessonID   int64        `json:"lesson_id"`
	Correct    int          `json:"correct"`
	Total      int          `json:"total"`
	Accuracy   float64      `json:"accuracy"`
	Stars      int          `json:"stars"`
	XPEarned   int          `json:"xp_earned"`
	Recorded   RecordResult `json:"recorded"`
	NextLesson *Lesson      `json:"next_lesson"`
}
