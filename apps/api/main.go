package main

import (
	"log"
	"os"

	"github.com/jmoiron/sqlx"

	echoapi "github.com/campushq/backend/apps/api/echo"
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

func main() {
	std := log.New(os.Stdout, "API : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)

	var logger core.Logger
	if core.Conf.Debug {
		logger = logsvc.NewStdLogger(std)
	} else {
		logger = logsvc.NewRollbarLogger(std, core.Conf)
	}

	// set up DB
	db, err := database.Open(core.Conf)
	errAndDie(std, err)
	defer func() { _ = db.Close() }()

	sdb := sqlx.NewDb(db, core.Conf.Database.Engine)
	coreDB := database.Wrap(db)

	// set up services
	var mailSvc core.EmailService
	if core.Conf.Debug {
		mailSvc = emailsvc.NewConsoleService()
	} else {
		mailSvc = emailsvc.NewSendgridService(logger)
	}

	usrSvc := user.NewService(sqlxrepos.NewUserRepository(sdb))
	notifSvc := notification.NewService(sqlxrepos.NewNotificationRepository(sdb), logger)
	libSvc := library.NewService(
		coreDB,
		sqlxrepos.NewLibraryRepository(sdb),
		usrSvc,
		notifSvc,
		mailSvc,
		openlibrary.NewClient(),
		logger,
		core.Conf.Library,
		core.Conf.Scheduler.SendTimeout,
	)

	// start API server
	app := echoapi.NewServer(&echoapi.Options{
		Addr:            core.Conf.Server.Addr,
		UserSvc:         usrSvc,
		LibrarySvc:      libSvc,
		NotificationSvc: notifSvc,
		Logger:          logger,
	})
	app.Start()
}

func errAndDie(std *log.Logger, err error) {
	if err != nil {
		std.Fatal(err)
	}
}
