package main

import (
	"context"
	"log"
	"os"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/wazazi/core"
	"github.com/trezcool/wazazi/core/user"
	emailsvc "github.com/trezcool/wazazi/services/email"
	logsvc "github.com/trezcool/wazazi/services/logger"
	"github.com/trezcool/wazazi/storage/database"
	"github.com/trezcool/wazazi/storage/database/pgdocs"
	"github.com/trezcool/wazazi/storage/docrepos"
)

func main() {
	conf := core.NewConfig()
	stdLogger := log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)
	logger := logsvc.NewRollbarLogger(stdLogger, conf)
	defer logger.Close()

	cli := commandLine{out: os.Stdout}

	// set up DB
	var store core.DocStore
	if conf.Database.Driver == "postgres" {
		db, err := database.Open(conf)
		errAndDie(logger, err)
		defer db.Close()
		errAndDie(logger, db.PingContext(context.Background()))
		cli.db = db.DB
		store = pgdocs.New(db)
	} else {
		logger.Warn("the memory store is not persisted; commands only last the process")
		var closeStore func() error
		var err error
		store, closeStore, err = database.OpenStore(context.Background(), conf)
		errAndDie(logger, err)
		defer func() { _ = closeStore() }()
	}

	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)

	// start CLI
	cli.usrRepo = docrepos.NewUserRepository(store)
	cli.schoolRepo = docrepos.NewSchoolRepository(store)
	cli.usrSvc = user.NewService(cli.usrRepo, emailsvc.NewConsoleService(conf, logger, stdLogger), conf)
	cli.validate = validate

	if err := cli.run(os.Args); err != nil {
		if err != errHelp {
			logger.Error("admin command failed", err, map[string]interface{}{"args": os.Args[1:]})
		}
		os.Exit(1)
	}
}

func errAndDie(logger core.Logger, err error) {
	if err != nil {
		logger.Fatal(err.Error(), err)
	}
}
