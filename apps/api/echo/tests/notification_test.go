package tests

import (
	"net/http"
	"testing"

	"github.com/campushq/backend/core/library"
	"github.com/campushq/backend/core/notification"
	"github.com/campushq/backend/core/user"
)

func TestNotificationAPI(t *testing.T) {
	ta := setup(t)
	librarian := ta.createUser(t, "libby01", "libby@campus.test", "Secr3t!pwd", []string{user.RoleAdminLibrarian})
	alice := ta.createUser(t, "alice01", "alice@campus.test", "Secr3t!pwd", []string{user.RoleStudent})
	book := ta.createBook(t, "9780132350884", "Clean Code", 1)

	aliceToken := getToken(t, alice)

	// issuing a book drops a notification on the student's feed
	body := marchallObj(t, library.IssueRequest{BookID: book.ID, StudentID: alice.ID})
	req, rec := newAuthRequest(http.MethodPost, "/v1/library/issues", getToken(t, librarian), body)
	ta.app.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("code = %v; body = %s", rec.Code, rec.Body.String())
	}

	var n notification.Notification

	t.Run("Query", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/notifications", aliceToken)
		ta.app.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("code = %v; body = %s", rec.Code, rec.Body.String())
		}
		var ns []notification.Notification
		unmarchallObj(t, rec, &ns)
		if len(ns) != 1 || ns[0].Title != "Book Issued" || ns[0].Read {
			t.Fatalf("notifications = %+v", ns)
		}
		n = ns[0]
	})

	t.Run("MarkRead", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/v1/notifications/"+n.ID+"/read", aliceToken)
		ta.app.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("code = %v; body = %s", rec.Code, rec.Body.String())
		}
		var got notification.Notification
		unmarchallObj(t, rec, &got)
		if !got.Read {
			t.Errorf("notification = %+v", got)
		}
	})

	t.Run("MarkRead on someone else's notification", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/v1/notifications/"+n.ID+"/read", getToken(t, librarian))
		ta.app.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{
			wantCode: http.StatusNotFound,
			wantData: marchallObj(t, httpErr{Error: notification.ErrNotFound.Error()}),
		}, rec)
	})

	t.Run("Empty feed", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/notifications", getToken(t, librarian))
		ta.app.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{
			wantCode: http.StatusOK,
			wantData: []byte(`[]`),
		}, rec)
	})
}
