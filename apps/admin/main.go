package main

import (
	"os"

	"github.com/trezcool/academia/core"
	logsvc "github.com/trezcool/academia/services/logger"
	"github.com/trezcool/academia/storage/database"
	boiledrepos "github.com/trezcool/academia/storage/database/sqlboiler"
)

var logger core.Logger

func main() {
	conf := core.Conf

	l, err := logsvc.NewRollbarLogger(conf, "ADMIN")
	if err != nil {
		panic(err)
	}
	defer l.Sync()
	logger = l

	if conf.Storage.Backend != core.StoragePostgres {
		logger.Fatal("the admin commands need the postgres storage backend")
	}

	// set up DB
	db, err := database.Open(conf)
	errAndDie(err)
	defer func() { _ = db.Close() }()

	// start CLI
	cli := commandLine{
		db:      db.DB,
		usrRepo: boiledrepos.NewUserRepository(db),
	}
	if err := cli.run(os.Args); err != nil {
		if err != errHelp {
			logger.Error("command failed", err)
		}
		l.Sync()
		os.Exit(1)
	}
}

func errAndDie(err error) {
	if err != nil {
		logger.Fatal(err.Error(), err)
	}
}
