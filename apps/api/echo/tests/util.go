package tests

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	. "github.com/campushq/backend/apps/api/echo"
	"github.com/campushq/backend/core"
	"github.com/campushq/backend/core/library"
	"github.com/campushq/backend/core/notification"
	"github.com/campushq/backend/core/user"
	emailsvc "github.com/campushq/backend/services/email"
	"github.com/campushq/backend/storage/database/dummy"
)

var errMissingToken = httpErr{Error: "missing or malformed jwt"}

func init() {
	// error bodies must be the production ones, not debug dumps
	core.Conf.Debug = false
	core.Conf.TestMode = true
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}

type testApp struct {
	app Server

	usrRepo user.Repository
	libRepo library.Repository
	usrSvc  *user.Service
	libSvc  *library.Service

	// the service clock; frozen so due dates are predictable
	now time.Time
}

func setup(t *testing.T) *testApp {
	t.Helper()

	// set up DB & repos
	db := dummy.NewDB()
	ta := &testApp{
		usrRepo: dummy.NewUserRepository(db),
		libRepo: dummy.NewLibraryRepository(db),
		now:     time.Now().UTC().Add(-10 * 24 * time.Hour),
	}

	// set up services
	mailSvc := emailsvc.NewConsoleServiceMock()
	logger := nopLogger{}
	ta.usrSvc = user.NewService(ta.usrRepo)
	notifSvc := notification.NewService(dummy.NewNotificationRepository(db), logger)
	ta.libSvc = library.NewServiceMock(
		db, ta.libRepo, ta.usrSvc, notifSvc, mailSvc, nil, /* meta */
		logger, core.Conf.Library, time.Second, func() time.Time { return ta.now },
	)

	// set up server
	ta.app = NewServer(
		&Options{
			DisableReqLogs:  true,
			UserSvc:         ta.usrSvc,
			LibrarySvc:      ta.libSvc,
			NotificationSvc: notifSvc,
			Logger:          logger,
		},
	)
	return ta
}

func (ta *testApp) createUser(t *testing.T, name, email, pwd string, roles []string) user.User {
	t.Helper()
	usr := user.User{
		Name:     name,
		Username: name,
		Email:    email,
		IsActive: true,
		Roles:    roles,
	}
	if err := usr.SetPassword(pwd); err != nil {
		t.Fatalf("SetPassword(): %v", err)
	}
	usr, err := ta.usrRepo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("CreateUser(): %v", err)
	}
	return usr
}

func (ta *testApp) createBook(t *testing.T, isbn, title string, copies int) library.Book {
	t.Helper()
	book, err := ta.libRepo.CreateBook(context.Background(), library.Book{
		ISBN:            isbn,
		Title:           title,
		Author:          "Author",
		TotalCopies:     copies,
		AvailableCopies: copies,
		AddedAt:         ta.now,
	})
	if err != nil {
		t.Fatalf("CreateBook(): %v", err)
	}
	return book
}

type httpErr struct {
	Error string `json:"error"`
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	token    string
	wantCode int
	wantData []byte
}

func newAuthRequest(method, path, token string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	return req, rec
}

func newRequest(method, path string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	return newAuthRequest(method, path, "", data...)
}

func getToken(t *testing.T, usr user.User) string {
	claims := GetUserClaims(usr)
	token, err := GenerateToken(claims)
	if err != nil {
		t.Fatalf("getToken(): %v", err)
	}
	return token
}

func marchallObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marchallObj(): %v", err)
	}
	return data
}

func unmarchallObj(t *testing.T, rec *httptest.ResponseRecorder, obj interface{}) {
	if err := json.Unmarshal(rec.Body.Bytes(), obj); err != nil {
		t.Fatalf("unmarchallObj(): %v; body = %s", err, rec.Body.String())
	}
}

func jsonBytesEqual(t *testing.T, b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	if reflect.DeepEqual(j1, j2) {
		return true, nil
	}
	if j1 == nil || j2 == nil {
		return false, nil
	}
	return assert.ElementsMatch(t, j1, j2), nil
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	if rec.Code != tt.wantCode {
		t.Errorf("failed! code = %v; wantCode %v", rec.Code, tt.wantCode)
	}
	ok, err := jsonBytesEqual(t, rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}
