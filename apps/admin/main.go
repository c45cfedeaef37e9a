package main

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"

	"github.com/kashur/backend/core"
	"github.com/kashur/backend/core/idiom"
	"github.com/kashur/backend/core/learning"
	"github.com/kashur/backend/core/user"
	emailsvc "github.com/kashur/backend/services/email"
	logsvc "github.com/kashur/backend/services/logger"
	"github.com/kashur/backend/storage/database"
	"github.com/kashur/backend/storage/database/sqlxrepos"
)

func main() {
	conf := core.NewConfig()

	zl, err := logsvc.NewZapLogger(conf)
	if err != nil {
		panic(err)
	}
	logger := logsvc.NewRollbarLogger(zl.Named("admin"), conf)
	logger.Enable(!conf.Debug)
	defer logger.Sync()

	// set up DB
	db, err := database.Open(conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("opening database: %v", err), err)
	}
	defer db.Close()

	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	learning.InitValidators(validate, translator)

	mailSvc := emailsvc.NewService(conf, logger)
	usrRepo := sqlxrepos.NewUserRepository(db)

	// start CLI
	cli := commandLine{
		db:          db,
		usrRepo:     usrRepo,
		idiomSvc:    idiom.NewService(db, sqlxrepos.NewIdiomRepository(db), mailSvc),
		learningSvc: learning.NewService(sqlxrepos.NewLearningRepository(db), logger, conf.Learning),
		validate:    validate,
		out:         os.Stdout,
	}
	if err = cli.run(os.Args); err != nil {
		if err != errHelp {
			logger.Error(fmt.Sprintf("%s failed: %v", os.Args[1], err), err)
		}
		logger.Sync()
		os.Exit(1)
	}
}
