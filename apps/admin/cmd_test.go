package main

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/campushq/backend/core"
	"github.com/campushq/backend/core/library"
	"github.com/campushq/backend/core/notification"
	"github.com/campushq/backend/core/user"
	emailsvc "github.com/campushq/backend/services/email"
	"github.com/campushq/backend/storage/database/dummy"
)

var (
	usrRepo user.Repository
	libRepo library.Repository
)

type nopLogger struct{}

func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}

func setup(t *testing.T) *commandLine {
	t.Helper()

	// set up DB & repos
	db := dummy.NewDB()
	usrRepo = dummy.NewUserRepository(db)
	libRepo = dummy.NewLibraryRepository(db)

	// set up services
	logger := nopLogger{}
	usrSvc := user.NewService(usrRepo)
	notifSvc := notification.NewService(dummy.NewNotificationRepository(db), logger)
	libSvc := library.NewService(
		db, libRepo, usrSvc, notifSvc, emailsvc.NewConsoleServiceMock(), nil, /* meta */
		logger, core.Conf.Library, time.Second,
	)

	// start CLI
	return &commandLine{
		usrRepo: usrRepo,
		libSvc:  libSvc,
	}
}

type cliTest struct {
	name       string
	args       []string // without program name
	wantErr    error
	wantErrStr string
	extra      interface{}
}

func checkCLIErr(t *testing.T, err error, tt cliTest) {
	t.Helper()
	if err == nil {
		if tt.wantErr != nil || tt.wantErrStr != "" {
			t.Errorf("cli.run() error = nil, wantErr %v%s", tt.wantErr, tt.wantErrStr)
		}
		return
	}
	if tt.wantErr != nil {
		if err != tt.wantErr {
			t.Errorf("cli.run() error = %v, wantErr %v", err, tt.wantErr)
		}
	} else if tt.wantErrStr != "" {
		if err.Error() != tt.wantErrStr {
			t.Errorf("cli.run() error.Error() = %s, wantErrStr %s", err.Error(), tt.wantErrStr)
		}
	} else {
		t.Errorf("cli.run() unexpected error = %v", err)
	}
}

func Test_commandLine_migrate(t *testing.T) {
	cli := setup(t)

	migrateRunFunc = func(db *sql.DB, command string, args ...string) error {
		switch command {
		case "up", "down", "redo", "reset", "status", "version": // pass
		case "up-to", "down-to":
			if len(args) == 0 {
				return fmt.Errorf("%s requires a VERSION argument", command)
			}
		default:
			return fmt.Errorf("%q: no such command", command)
		}
		return nil
	}

	tests := []cliTest{
		{name: "no command", args: nil, wantErr: errHelp},
		{name: "unknown command", args: []string{"lol"}, wantErr: errHelp},
		{name: "no subcommand defaults to up", args: []string{"migrate"}},
		{name: "unknown subcommand", args: []string{"migrate", "lol"}, wantErrStr: "\"lol\": no such command"},
		{name: "up", args: []string{"migrate", "up"}},
		{name: "up-to: no args", args: []string{"migrate", "up-to"}, wantErrStr: "up-to requires a VERSION argument"},
		{name: "up-to", args: []string{"migrate", "up-to", "2"}},
		{name: "down", args: []string{"migrate", "down"}},
		{name: "down-to", args: []string{"migrate", "down-to", "1"}},
		{name: "redo", args: []string{"migrate", "redo"}},
		{name: "reset", args: []string{"migrate", "reset"}},
		{name: "status", args: []string{"migrate", "status"}},
		{name: "version", args: []string{"migrate", "version"}},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		t.Run(tt.name, func(t *testing.T) {
			checkCLIErr(t, cli.run(args), tt)
		})
	}
}

func Test_commandLine_addUser(t *testing.T) {
	cli := setup(t)

	type extra struct {
		pwd string
	}
	tests := []cliTest{
		{name: "no args", args: []string{"adduser"}, wantErr: errHelp},
		{name: "username but no password", args: []string{"adduser", "-username", "mary01"}, wantErr: errHelp},
		{name: "create", args: []string{"adduser", "-username", "mary01", "-email", "mary@campus.test"}, extra: extra{pwd: "s3cret"}},
		{name: "create admin", args: []string{"adduser", "-username", "root01", "-admin"}, extra: extra{pwd: "s3cret"}},
		{name: "update existing", args: []string{"adduser", "-username", "mary01"}, extra: extra{pwd: "n3wpwd"}},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		readPasswordFunc = func(fd int) ([]byte, error) {
			if extra, ok := tt.extra.(extra); ok {
				return []byte(extra.pwd), nil
			}
			return nil, nil
		}

		t.Run(tt.name, func(t *testing.T) {
			checkCLIErr(t, cli.run(args), tt)
		})
	}

	mary, err := usrRepo.GetUserByUsername(context.Background(), "mary01")
	if err != nil {
		t.Fatalf("GetUserByUsername(): %v", err)
	}
	if !mary.IsActive || mary.IsAdmin() {
		t.Errorf("mary = %+v", mary)
	}
	if err = mary.CheckPassword("n3wpwd"); err != nil {
		t.Error("password was not updated")
	}

	root, err := usrRepo.GetUserByUsername(context.Background(), "root01")
	if err != nil {
		t.Fatalf("GetUserByUsername(): %v", err)
	}
	if !root.IsAdmin() {
		t.Errorf("root roles = %v", root.Roles)
	}
}

func Test_commandLine_resetPassword(t *testing.T) {
	cli := setup(t)

	usr := user.User{Name: "Awe", Username: "awe001", Email: "awe@campus.test", IsActive: true}
	if err := usr.SetPassword("mdr"); err != nil {
		t.Fatalf("SetPassword(): %v", err)
	}
	usr, err := usrRepo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("CreateUser(): %v", err)
	}

	type extra struct {
		pwd string
	}
	tests := []cliTest{
		{name: "no args", args: []string{"resetpassword"}, wantErr: errHelp},
		{name: "username but no password", args: []string{"resetpassword", "-username", "lol"}, wantErr: errHelp},
		{name: "user not found", args: []string{"resetpassword", "-username", "lol"}, extra: extra{pwd: "lol"}, wantErr: user.ErrNotFound},
		{name: "reset with username", args: []string{"resetpassword", "-username", usr.Username}, extra: extra{pwd: "lol"}},
		{name: "reset with email", args: []string{"resetpassword", "-username", usr.Email}, extra: extra{pwd: "lmao"}},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		readPasswordFunc = func(fd int) ([]byte, error) {
			if extra, ok := tt.extra.(extra); ok {
				return []byte(extra.pwd), nil
			}
			return nil, nil
		}

		t.Run(tt.name, func(t *testing.T) {
			err := cli.run(args)
			if err == nil {
				refreshed, err := usrRepo.GetUserByID(context.Background(), usr.ID)
				if err != nil {
					t.Fatalf("GetUserByID(): %v", err)
				}
				if bytes.Equal(refreshed.PasswordHash, usr.PasswordHash) {
					t.Error("failed to update new password")
				}
			} else {
				checkCLIErr(t, err, tt)
			}
		})
	}
}

func Test_commandLine_addBook(t *testing.T) {
	cli := setup(t)

	tests := []cliTest{
		{name: "no isbn", args: []string{"addbook"}, wantErr: errHelp},
		{name: "catalog", args: []string{"addbook", "-isbn", "9780132350884", "-title", "Clean Code", "-author", "Robert C. Martin", "-copies", "3"}},
		{name: "duplicate", args: []string{"addbook", "-isbn", "9780132350884", "-title", "Dup", "-author", "Dup"}, wantErr: library.ErrBookExists},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		t.Run(tt.name, func(t *testing.T) {
			checkCLIErr(t, cli.run(args), tt)
		})
	}

	book, err := libRepo.GetBookByISBN(context.Background(), "9780132350884")
	if err != nil {
		t.Fatalf("GetBookByISBN(): %v", err)
	}
	if book.Title != "Clean Code" || book.TotalCopies != 3 || book.AvailableCopies != 3 {
		t.Errorf("book = %+v", book)
	}
}
