// The worker runs the scheduled library jobs, currently the daily overdue
// reminder sweep.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/robfig/cron/v3"

	"github.com/campushq/backend/core"
	"github.com/campushq/backend/core/library"
	"github.com/campushq/backend/core/notification"
	"github.com/campushq/backend/core/user"
	emailsvc "github.com/campushq/backend/services/email"
	logsvc "github.com/campushq/backend/services/logger"
	"github.com/campushq/backend/storage/database"
	"github.com/campushq/backend/storage/database/sqlxrepos"
)

func main() {
	std := log.New(os.Stdout, "WORKER : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)

	var logger core.Logger
	if core.Conf.Debug {
		logger = logsvc.NewStdLogger(std)
	} else {
		logger = logsvc.NewRollbarLogger(std, core.Conf)
	}

	db, err := database.Open(core.Conf)
	if err != nil {
		std.Fatal(err)
	}
	defer func() { _ = db.Close() }()

	sdb := sqlx.NewDb(db, core.Conf.Database.Engine)
	coreDB := database.Wrap(db)

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
		nil, // no ISBN lookups needed here
		logger,
		core.Conf.Library,
		core.Conf.Scheduler.SendTimeout,
	)

	c := cron.New(
		cron.WithSeconds(),
		cron.WithLocation(time.UTC),
		cron.WithChain(cron.Recover(cron.DefaultLogger)),
	)
	_, err = c.AddFunc(core.Conf.Scheduler.OverdueReminders, func() {
		now := time.Now().UTC()
		reminded, err := libSvc.BulkRemind(context.Background(), now)
		if err != nil {
			logger.Error("overdue reminder sweep failed", err)
			return
		}
		logger.Info(fmt.Sprintf("overdue reminder sweep done; %d reminder(s) sent", reminded))
	})
	if err != nil {
		std.Fatal(err)
	}

	logger.Info(fmt.Sprintf("scheduling overdue reminders: %q", core.Conf.Scheduler.OverdueReminders))
	c.Start()

	// wait for shutdown signal, then let running jobs finish
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info("stopping worker")
	<-c.Stop().Done()
}
