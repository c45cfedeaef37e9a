package main

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/kashur/backend/core"
	"github.com/kashur/backend/core/idiom"
	"github.com/kashur/backend/core/learning"
	"github.com/kashur/backend/core/user"
	emailsvc "github.com/kashur/backend/services/email"
	logsvc "github.com/kashur/backend/services/logger"
	"github.com/kashur/backend/storage/database/sqlxrepos"
	"github.com/kashur/backend/storage/database/testutil"
)

const testPwd = "Wular#Lake-77"

func setup(t *testing.T) (*commandLine, *bytes.Buffer) {
	t.Helper()
	conf := core.NewTestConfig()
	logger := logsvc.NewNopLogger()

	// set up DB & services
	db := testutil.PrepareDB(t)
	mailSvc := emailsvc.NewConsoleServiceMock(conf, logger)

	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	learning.InitValidators(validate, translator)

	// start CLI
	var out bytes.Buffer
	return &commandLine{
		db:          db,
		usrRepo:     sqlxrepos.NewUserRepository(db),
		idiomSvc:    idiom.NewService(db, sqlxrepos.NewIdiomRepository(db), mailSvc),
		learningSvc: learning.NewService(sqlxrepos.NewLearningRepository(db), logger, conf.Learning),
		validate:    validate,
		out:         &out,
	}, &out
}

type cliTest struct {
	name       string
	args       []string // without program name
	pwd        string
	wantErr    error
	wantErrStr string
}

func (tt cliTest) check(t *testing.T, err error) {
	t.Helper()
	switch {
	case tt.wantErr != nil:
		assert.Equal(t, tt.wantErr, errors.Cause(err))
	case tt.wantErrStr != "":
		if assert.Error(t, err) {
			assert.Contains(t, err.Error(), tt.wantErrStr)
		}
	default:
		assert.NoError(t, err)
	}
}

func mockPassword(t *testing.T, pwd string) {
	orig := readPasswordFunc
	t.Cleanup(func() { readPasswordFunc = orig })
	readPasswordFunc = func(fd int) ([]byte, error) {
		return []byte(pwd), nil
	}
}

func Test_commandLine_usage(t *testing.T) {
	cli, out := setup(t)
	tests := []cliTest{
		{name: "no command", wantErr: errHelp},
		{name: "unknown command", args: []string{"lol"}, wantErr: errHelp},
		{name: "migrate: no subcommand", args: []string{"migrate"}, wantErr: errHelp},
		{name: "seed: no file", args: []string{"seed"}, wantErr: errHelp},
		{name: "importidioms: no file", args: []string{"importidioms"}, wantErr: errHelp},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out.Reset()
			tt.check(t, cli.run(append([]string{"admin"}, tt.args...)))
			assert.Contains(t, out.String(), "Usage:")
		})
	}
}

func Test_commandLine_migrate(t *testing.T) {
	cli, _ := setup(t)

	origRun := gooseRunFunc
	t.Cleanup(func() { gooseRunFunc = origRun })
	gooseRunFunc = func(command string, db *sql.DB, dir string, args ...string) error {
		if dir != "migrations/sqlite3" {
			return fmt.Errorf("unexpected migrations dir %q", dir)
		}
		switch command {
		case "up", "up-by-one", "down", "fix", "redo", "reset", "status", "version": // pass
		case "up-to", "down-to":
			if len(args) == 0 {
				return fmt.Errorf("%s must be of form: goose [OPTIONS] DRIVER DBSTRING %s VERSION", command, command)
			}
			if _, err := strconv.ParseInt(args[0], 10, 64); err != nil {
				return fmt.Errorf("version must be a number (got '%s')", args[0])
			}
		case "create":
			if len(args) == 0 {
				return fmt.Errorf("create must be of form: goose [OPTIONS] DRIVER DBSTRING create NAME [go|sql]")
			}
		default:
			return fmt.Errorf("%q: no such command", command)
		}
		return nil
	}

	tests := []cliTest{
		{name: "unknown subcommand", args: []string{"migrate", "lol"}, wantErrStr: "\"lol\": no such command"},
		{name: "up-to: no args", args: []string{"migrate", "up-to"}, wantErrStr: "up-to must be of form"},
		{name: "up-to: non-int arg", args: []string{"migrate", "up-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "create: no args", args: []string{"migrate", "create"}, wantErrStr: "create must be of form"},
		{name: "down-to: no args", args: []string{"migrate", "down-to"}, wantErrStr: "down-to must be of form"},
		{name: "up", args: []string{"migrate", "up"}},
		{name: "up-to", args: []string{"migrate", "up-to", "2"}},
		{name: "down-to", args: []string{"migrate", "down-to", "1"}},
		{name: "status", args: []string{"migrate", "status"}},
		{name: "create", args: []string{"migrate", "create", "idiom_audio", "sql"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, cli.run(append([]string{"admin"}, tt.args...)))
		})
	}
}

func Test_commandLine_addUser(t *testing.T) {
	cli, _ := setup(t)
	ctx := context.Background()

	tests := []cliTest{
		{name: "no args", args: []string{"adduser"}, wantErr: errHelp},
		{name: "no email", args: []string{"adduser", "-username", "mir"}, pwd: testPwd, wantErr: errHelp},
		{name: "no password", args: []string{"adduser", "-username", "mir", "-email", "mir@test.kash"}, wantErr: errHelp},
		{name: "bad email", args: []string{"adduser", "-username", "mir", "-email", "mir"}, pwd: testPwd, wantErrStr: "invalid email"},
		{name: "weak password", args: []string{"adduser", "-username", "mir", "-email", "mir@test.kash"}, pwd: "12345678", wantErrStr: "entirely numeric"},
		{name: "learner", args: []string{"adduser", "-username", "Mir", "-email", "MIR@test.kash"}, pwd: testPwd},
		{name: "promote", args: []string{"adduser", "-username", "mir", "-email", "mir@test.kash", "-admin"}, pwd: testPwd},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockPassword(t, tt.pwd)
			tt.check(t, cli.run(append([]string{"admin"}, tt.args...)))
		})
	}

	usr, err := cli.usrRepo.GetUser(ctx, user.GetFilter{Username: "mir"})
	require.NoError(t, err)
	assert.Equal(t, "mir@test.kash", usr.Email)
	assert.True(t, usr.IsActive)
	assert.True(t, usr.IsAdmin())
	assert.True(t, usr.IsLearner())
	assert.NoError(t, usr.CheckPassword(testPwd))
}

func Test_commandLine_resetPassword(t *testing.T) {
	cli, _ := setup(t)
	usr := testutil.CreateUser(t, cli.usrRepo, "User", "awe", "awe@test.kash", "Old#Pass-123", nil, true)

	tests := []cliTest{
		{name: "no args", args: []string{"resetpassword"}, wantErr: errHelp},
		{name: "username but no password", args: []string{"resetpassword", "-username", "lol"}, wantErr: errHelp},
		{name: "user not found", args: []string{"resetpassword", "-username", "lol"}, pwd: testPwd, wantErr: user.ErrNotFound},
		{name: "weak password", args: []string{"resetpassword", "-username", usr.Username}, pwd: "short", wantErrStr: "at least 8 characters"},
		{name: "reset with username", args: []string{"resetpassword", "-username", usr.Username}, pwd: testPwd},
		{name: "reset with email", args: []string{"resetpassword", "-username", "AWE@test.kash"}, pwd: "Pahal#Gam-42"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockPassword(t, tt.pwd)
			tt.check(t, cli.run(append([]string{"admin"}, tt.args...)))
		})
	}

	refreshed, err := cli.usrRepo.GetUser(context.Background(), user.GetFilter{ID: usr.ID})
	require.NoError(t, err)
	assert.NoError(t, refreshed.CheckPassword("Pahal#Gam-42"))
}

const seedYAML = `
levels:
  - name: Basics
    order: 1
    lessons:
      - title: Greetings
        order: 1
        xp_reward: 10
        steps:
          - type: teach
            order: 1
            content:
              title: Hello
              text: Say hello
              kashmiri: Salaam
          - type: quiz_easy
            order: 2
            content:
              question: How do you say hello?
              options: [Salaam, Kaav]
              correct_answer: Salaam
      - title: Numbers
        order: 2
        coming_soon: true
  - name: Idioms
    order: 2
    min_stars_required: 3
badges:
  - name: First Steps
    description: Finish the basics
    level_order: 1
alphabet:
  - letter: ا
    name: Alif
    pronunciation: a as in father
    example_word_kashmiri: اَنہٕ
    example_word_english: egg
    order: 1
  - letter: ب
    name: Be
    order: 2
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func Test_commandLine_seed(t *testing.T) {
	cli, out := setup(t)
	ctx := context.Background()
	path := writeFile(t, "content.yaml", seedYAML)

	require.NoError(t, cli.run([]string{"admin", "seed", path}))
	assert.Contains(t, out.String(), "levels: 2 created, 0 updated")
	assert.Contains(t, out.String(), "steps: 2 created, 0 updated")
	assert.Contains(t, out.String(), "letters: 2 created, 0 updated")

	out.Reset()
	require.NoError(t, cli.run([]string{"admin", "seed", path}), "seeding twice")
	assert.Contains(t, out.String(), "levels: 0 created, 2 updated")
	assert.Contains(t, out.String(), "badges: 0 created, 1 updated")
	assert.Contains(t, out.String(), "letters: 0 created, 2 updated")

	levels, err := cli.learningSvc.Levels(ctx)
	require.NoError(t, err)
	require.Len(t, levels, 2)
	assert.Equal(t, 3, levels[1].MinStarsRequired)

	lessons, err := cli.learningSvc.Lessons(ctx, levels[0].ID)
	require.NoError(t, err)
	require.Len(t, lessons, 2)
	assert.True(t, lessons[1].ComingSoon)

	badges, err := cli.learningSvc.Badges(ctx)
	require.NoError(t, err)
	require.Len(t, badges, 1)
	assert.True(t, badges[0].Criteria.MatchesLevelComplete(levels[0].ID))

	alphabet, err := cli.learningSvc.Alphabet(ctx)
	require.NoError(t, err)
	require.Len(t, alphabet, 2)
	assert.Equal(t, "Alif", alphabet[0].Name)
	assert.Equal(t, "a as in father", alphabet[0].Pronunciation)

	tests := []cliTest{
		{name: "missing file", args: []string{"seed", "nope.yaml"}, wantErrStr: "reading seed file"},
		{name: "not yaml", args: []string{"seed", writeFile(t, "bad.yaml", "levels: [")}, wantErrStr: "decoding seed file"},
		{
			name:       "invalid step",
			args:       []string{"seed", writeFile(t, "step.yaml", "levels:\n  - name: Basics\n    order: 1\n    lessons:\n      - title: Greetings\n        order: 1\n        steps:\n          - type: speak\n            order: 1\n")},
			wantErrStr: "speak content needs a prompt text",
		},
		{
			name:       "badge of unknown level",
			args:       []string{"seed", writeFile(t, "badge.yaml", "badges:\n  - name: Ghost\n    level_order: 9\n")},
			wantErrStr: "no level with order 9",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, cli.run(append([]string{"admin"}, tt.args...)))
		})
	}
}

func Test_commandLine_importIdioms(t *testing.T) {
	cli, out := setup(t)
	ctx := context.Background()

	xlsx := filepath.Join(t.TempDir(), "idioms.xlsx")
	f := excelize.NewFile()
	rows := [][]interface{}{
		{"kashmiri", "transliteration", "translation", "meaning", "tags"},
		{"Kaav chhu kaav", "kaav chhu kaav", "A crow is a crow", "People do not change", "Animals; proverb"},
		{"Yeth gaame tsoor", "yeth gaame tsoor", "A thief in this village"},
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow("Sheet1", cell, &row))
	}
	require.NoError(t, f.SaveAs(xlsx))
	require.NoError(t, f.Close())

	require.NoError(t, cli.run([]string{"admin", "importidioms", xlsx}))
	assert.Contains(t, out.String(), "imported 1 idioms, skipped 1 rows")
	assert.Contains(t, out.String(), "skipped row 3")

	csvPath := writeFile(t, "idioms.csv", "Haakh te bata,haakh te bata,Greens and rice,A simple life,food\n")
	out.Reset()
	require.NoError(t, cli.run([]string{"admin", "importidioms", csvPath}))
	assert.Contains(t, out.String(), "imported 1 idioms, skipped 0 rows")

	idioms, err := cli.idiomSvc.Search(ctx, &idiom.SearchFilter{})
	require.NoError(t, err)
	require.Len(t, idioms, 2)
	tags, err := cli.idiomSvc.Tags(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"animals", "food", "proverb"}, tags)

	err = cli.run([]string{"admin", "importidioms", "idioms.txt"})
	assert.EqualError(t, err, "idioms.txt: unsupported file type, expected .xlsx or .csv")
}

func Test_commandLine_rebuildStats(t *testing.T) {
	cli, out := setup(t)
	ctx := context.Background()

	require.NoError(t, cli.run([]string{"admin", "seed", writeFile(t, "content.yaml", seedYAML)}))
	levels, err := cli.learningSvc.Levels(ctx)
	require.NoError(t, err)
	lessons, err := cli.learningSvc.Lessons(ctx, levels[0].ID)
	require.NoError(t, err)

	usr := testutil.CreateUser(t, cli.usrRepo, "Zoon", "zoon", "zoon@test.kash", "", user.LearnerRoles, true)
	_, err = cli.learningSvc.RecordProgress(ctx, learning.Learner{UserID: usr.ID}, lessons[0].ID, 2)
	require.NoError(t, err)

	out.Reset()
	require.NoError(t, cli.run([]string{"admin", "rebuildstats"}))
	assert.Equal(t, "rebuilt the stats of 1 learners\n", out.String())

	stats, err := cli.learningSvc.Stats(ctx, learning.Learner{UserID: usr.ID})
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalStars)
	assert.Equal(t, 1, stats.LessonsCompleted)
}

func Test_commandLine_seedStarterContent(t *testing.T) {
	cli, out := setup(t)
	require.NoError(t, cli.run([]string{"admin", "seed", filepath.Join("..", "..", "assets", "seed", "basics.yaml")}))
	assert.Contains(t, out.String(), "levels: 2 created, 0 updated")
	assert.Contains(t, out.String(), "steps: 6 created, 0 updated")
	assert.Contains(t, out.String(), "badges: 1 created, 0 updated")
	assert.Contains(t, out.String(), "letters: 3 created, 0 updated")
}
