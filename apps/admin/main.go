package main

import (
	"log"
	"os"

	"github.com/jmoiron/sqlx"

	"github.com/campushq/backend/core"
	"github.com/campushq/backend/core/library"
	"github.com/campushq/backend/core/notification"
	"github.com/campushq/backend/core/user"
	emailsvc "github.com/campushq/backend/services/email"
	logsvc "github.com/campushq/backend/services/logger"
	"github.com/campushq/backend/services/openlibrary"
	"github.com/campushq/backend/storage/database"
	"github.com/campushq/backend/storage/database/sqlxrepos"
)

var logger *log.Logger

func main() {
	defer os.Exit(0)

	logger = log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)

	// set up DB
	errAndDie(database.CreateIfNotExist(core.Conf))
	db, err := database.Open(core.Conf)
	errAndDie(err)
	defer func() { _ = db.Close() }()
	errAndDie(db.Ping())

	sdb := sqlx.NewDb(db, core.Conf.Database.Engine)
	usrSvc := user.NewService(sqlxrepos.NewUserRepository(sdb))
	notifSvc := notification.NewService(sqlxrepos.NewNotificationRepository(sdb), logsvc.NewStdLogger(logger))
	libSvc := library.NewService(
		database.Wrap(db),
		sqlxrepos.NewLibraryRepository(sdb),
		usrSvc,
		notifSvc,
		emailsvc.NewConsoleService(),
		openlibrary.NewClient(),
		logsvc.NewStdLogger(logger),
		core.Conf.Library,
		core.Conf.Scheduler.SendTimeout,
	)

	// start CLI
	cli := commandLine{
		db:      db,
		usrRepo: sqlxrepos.NewUserRepository(sdb),
		libSvc:  libSvc,
	}
	if err := cli.run(os.Args); err != nil {
		if err != errHelp {
			logger.Printf("\nerror: %s\n", err)
		}
		os.Exit(1)
	}
}

func errAndDie(err error) {
	if err != nil {
		logger.Fatal(err)
	}
}
