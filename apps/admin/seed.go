package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/kashur/backend/core/learning"
)

type (
	seedDocument struct {
		Levels   []seedLevel  `yaml:"levels"`
		Badges   []seedBadge  `yaml:"badges"`
		Alphabet []seedLetter `yaml:"alphabet"`
	}

	seedLevel struct {
		Name             string       `yaml:"name"`
		Description      string       `yaml:"description"`
		Order            int          `yaml:"order"`
		MinStarsRequired int          `yaml:"min_stars_required"`
		Lessons          []seedLesson `yaml:"lessons"`
	}

	seedLesson struct {
		Title       string     `yaml:"title"`
		Description string     `yaml:"description"`
		Order       int        `yaml:"order"`
		XPReward    int        `yaml:"xp_reward"`
		ComingSoon  bool       `yaml:"coming_soon"`
		Steps       []seedStep `yaml:"steps"`
	}

	seedStep struct {
		Type    learning.StepType      `yaml:"type"`
		Order   int                    `yaml:"order"`
		Content map[string]interface{} `yaml:"content"`
	}

	// seedBadge rewards the completion of the level at LevelOrder.
	seedBadge struct {
		Name        string `yaml:"name"`
		Description string `yaml:"description"`
		IconURL     string `yaml:"icon_url"`
		LevelOrder  int    `yaml:"level_order"`
	}

	seedLetter struct {
		Letter              string `yaml:"letter"`
		Name                string `yaml:"name"`
		Pronunciation       string `yaml:"pronunciation"`
		ExampleWordKashmiri string `yaml:"example_word_kashmiri"`
		ExampleWordEnglish  string `yaml:"example_word_english"`
		Order               int    `yaml:"order"`
	}

	seedCounts struct {
		created, updated int
	}
)

func (sc seedCounts) String() string {
	return fmt.Sprintf("%d created, %d updated", sc.created, sc.updated)
}

// seed creates or updates the content described by the YAML file at path.
// Levels, lessons, steps & letters are matched by their order, badges by their name, so running it twice changes nothing.
func (cli *commandLine) seed(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrap(err, "reading seed file")
	}
	var doc seedDocument
	if err = yaml.Unmarshal(data, &doc); err != nil {
		return errors.Wrap(err, "decoding seed file")
	}

	ctx := context.Background()
	var levels, lessons, steps, badges, letters seedCounts

	levelIDs := make(map[int]int64, len(doc.Levels))
	existingLevels, err := cli.learningSvc.Levels(ctx)
	if err != nil {
		return errors.Wrap(err, "querying levels")
	}
	for _, lvl := range existingLevels {
		levelIDs[lvl.Order] = lvl.ID
	}

	for _, sl := range doc.Levels {
		nl := learning.NewLevel{
			Name:             sl.Name,
			Description:      sl.Description,
			Order:            sl.Order,
			MinStarsRequired: sl.MinStarsRequired,
		}
		if err = nl.Validate(cli.validate); err != nil {
			return errors.Wrapf(err, "level %d", sl.Order)
		}

		var lvl learning.Level
		if id, ok := levelIDs[sl.Order]; ok {
			lvl, err = cli.learningSvc.UpdateLevel(ctx, id, nl)
			levels.updated++
		} else {
			lvl, err = cli.learningSvc.CreateLevel(ctx, nl)
			levels.created++
		}
		if err != nil {
			return errors.Wrapf(err, "saving level %d", sl.Order)
		}
		levelIDs[lvl.Order] = lvl.ID

		if err = cli.seedLessons(ctx, lvl, sl.Lessons, &lessons, &steps); err != nil {
			return err
		}
	}

	if err = cli.seedBadges(ctx, doc.Badges, levelIDs, &badges); err != nil {
		return err
	}
	if err = cli.seedAlphabet(ctx, doc.Alphabet, &letters); err != nil {
		return err
	}

	fmt.Fprintf(cli.out, "levels: %s\nlessons: %s\nsteps: %s\nbadges: %s\nletters: %s\n", levels, lessons, steps, badges, letters)
	return nil
}

func (cli *commandLine) seedLessons(ctx context.Context, lvl learning.Level, sls []seedLesson, lessons, steps *seedCounts) error {
	existing, err := cli.learningSvc.Lessons(ctx, lvl.ID)
	if err != nil {
		return errors.Wrap(err, "querying lessons")
	}
	lessonIDs := make(map[int]int64, len(existing))
	for _, lsn := range existing {
		lessonIDs[lsn.Order] = lsn.ID
	}

	for _, sl := range sls {
		nl := learning.NewLesson{
			LevelID:     lvl.ID,
			Title:       sl.Title,
			Description: sl.Description,
			Order:       sl.Order,
			XPReward:    sl.XPReward,
			ComingSoon:  sl.ComingSoon,
		}
		if err = nl.Validate(cli.validate); err != nil {
			return errors.Wrapf(err, "level %d, lesson %d", lvl.Order, sl.Order)
		}

		var lsn learning.Lesson
		if id, ok := lessonIDs[sl.Order]; ok {
			lsn, err = cli.learningSvc.UpdateLesson(ctx, id, nl)
			lessons.updated++
		} else {
			lsn, err = cli.learningSvc.CreateLesson(ctx, nl)
			lessons.created++
		}
		if err != nil {
			return errors.Wrapf(err, "saving level %d, lesson %d", lvl.Order, sl.Order)
		}

		if err = cli.seedSteps(ctx, lsn, sl.Steps, steps); err != nil {
			return errors.Wrapf(err, "level %d, lesson %d", lvl.Order, sl.Order)
		}
	}
	return nil
}

func (cli *commandLine) seedSteps(ctx context.Context, lsn learning.Lesson, sss []seedStep, steps *seedCounts) error {
	existing, err := cli.learningSvc.Steps(ctx, lsn.ID)
	if err != nil {
		return errors.Wrap(err, "querying steps")
	}
	stepIDs := make(map[int]int64, len(existing))
	for _, step := range existing {
		stepIDs[step.Order] = step.ID
	}

	for _, ss := range sss {
		content, err := json.Marshal(ss.Content)
		if err != nil {
			return errors.Wrapf(err, "step %d: encoding content", ss.Order)
		}
		ns := learning.NewStep{LessonID: lsn.ID, Type: ss.Type, Order: ss.Order, Content: content}
		if err = ns.Validate(cli.validate); err != nil {
			return errors.Wrapf(err, "step %d", ss.Order)
		}

		if id, ok := stepIDs[ss.Order]; ok {
			_, err = cli.learningSvc.UpdateStep(ctx, id, ns)
			steps.updated++
		} else {
			_, err = cli.learningSvc.CreateStep(ctx, ns)
			steps.created++
		}
		if err != nil {
			return errors.Wrapf(err, "saving step %d", ss.Order)
		}
	}
	return nil
}

func (cli *commandLine) seedBadges(ctx context.Context, sbs []seedBadge, levelIDs map[int]int64, badges *seedCounts) error {
	existing, err := cli.learningSvc.Badges(ctx)
	if err != nil {
		return errors.Wrap(err, "querying badges")
	}
	badgeIDs := make(map[string]int64, len(existing))
	for _, badge := range existing {
		badgeIDs[badge.Name] = badge.ID
	}

	for _, sb := range sbs {
		levelID, ok := levelIDs[sb.LevelOrder]
		if !ok {
			return errors.Errorf("badge %q: no level with order %d", sb.Name, sb.LevelOrder)
		}
		nb := learning.NewBadge{
			Name:        sb.Name,
			Description: sb.Description,
			IconURL:     sb.IconURL,
			Criteria:    learning.BadgeCriteria{Type: learning.CriteriaLevelComplete, LevelID: levelID},
		}
		if err = nb.Validate(cli.validate); err != nil {
			return errors.Wrapf(err, "badge %q", sb.Name)
		}

		if id, ok := badgeIDs[nb.Name]; ok {
			_, err = cli.learningSvc.UpdateBadge(ctx, id, nb)
			badges.updated++
		} else {
			_, err = cli.learningSvc.CreateBadge(ctx, nb)
			badges.created++
		}
		if err != nil {
			return errors.Wrapf(err, "saving badge %q", sb.Name)
		}
	}
	return nil
}

func (cli *commandLine) seedAlphabet(ctx context.Context, sls []seedLetter, letters *seedCounts) error {
	existing, err := cli.learningSvc.Alphabet(ctx)
	if err != nil {
		return errors.Wrap(err, "querying alphabet")
	}
	letterIDs := make(map[int]int64, len(existing))
	for _, ltr := range existing {
		letterIDs[ltr.Order] = ltr.ID
	}

	for _, sl := range sls {
		nl := learning.NewLetter{
			Letter:              sl.Letter,
			Name:                sl.Name,
			Pronunciation:       sl.Pronunciation,
			ExampleWordKashmiri: sl.ExampleWordKashmiri,
			ExampleWordEnglish:  sl.ExampleWordEnglish,
			Order:               sl.Order,
		}
		if err = nl.Validate(cli.validate); err != nil {
			return errors.Wrapf(err, "letter %d", sl.Order)
		}

		if id, ok := letterIDs[sl.Order]; ok {
			_, err = cli.learningSvc.UpdateLetter(ctx, id, nl)
			letters.updated++
		} else {
			_, err = cli.learningSvc.CreateLetter(ctx, nl)
			letters.created++
		}
		if err != nil {
			return errors.Wrapf(err, "saving letter %d", sl.Order)
		}
	}
	return nil
}
