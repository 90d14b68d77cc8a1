package tests

import (
	"fmt"
	"net/http"
	"testing"
	"time"

	. "github.com/campushq/backend/apps/api/echo"
	"github.com/campushq/backend/core/library"
	"github.com/campushq/backend/core/user"
)

func TestLibraryAPI_accessControl(t *testing.T) {
	ta := setup(t)
	student := ta.createUser(t, "alice01", "alice@campus.test", "Secr3t!pwd", []string{user.RoleStudent})
	faculty := ta.createUser(t, "prof001", "prof@campus.test", "Secr3t!pwd", []string{user.RoleFaculty})
	studentToken := getToken(t, student)
	facultyToken := getToken(t, faculty)

	forbidden := marchallObj(t, httpErr{Error: "permission denied"})
	tests := []httpTest{
		{
			name: "Auth required", method: http.MethodGet, path: "/v1/library/books",
			wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken),
		},
		{
			name: "Cataloging requires librarian", method: http.MethodPost, path: "/v1/library/books",
			token: studentToken, wantCode: http.StatusForbidden, wantData: forbidden,
		},
		{
			name: "Issuing requires librarian", method: http.MethodPost, path: "/v1/library/issues",
			token: studentToken, wantCode: http.StatusForbidden, wantData: forbidden,
		},
		{
			name: "Overdue listing requires librarian", method: http.MethodGet, path: "/v1/library/issues/overdue",
			token: studentToken, wantCode: http.StatusForbidden, wantData: forbidden,
		},
		{
			name: "Waiving requires librarian", method: http.MethodPost, path: "/v1/library/issues/xyz/fine/waive",
			token: studentToken, wantCode: http.StatusForbidden, wantData: forbidden,
		},
		{
			name: "Shelf is for students", method: http.MethodGet, path: "/v1/library/my-books",
			token: facultyToken, wantCode: http.StatusForbidden, wantData: forbidden,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
			ta.app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}
}

func TestLibraryAPI_catalog(t *testing.T) {
	ta := setup(t)
	librarian := ta.createUser(t, "libby01", "libby@campus.test", "Secr3t!pwd", []string{user.RoleAdminLibrarian})
	token := getToken(t, librarian)

	var book library.Book

	t.Run("AddBook", func(t *testing.T) {
		body := marchallObj(t, library.NewBook{
			ISBN: "9780132350884", Title: "Clean Code", Author: "Robert C. Martin", TotalCopies: 2,
		})
		req, rec := newAuthRequest(http.MethodPost, "/v1/library/books", token, body)
		ta.app.ServeHTTP(rec, req)

		if rec.Code != http.StatusCreated {
			t.Fatalf("code = %v; want %v; body = %s", rec.Code, http.StatusCreated, rec.Body.String())
		}
		unmarchallObj(t, rec, &book)
		if book.ID == "" || book.AvailableCopies != 2 {
			t.Errorf("book = %+v", book)
		}
	})

	t.Run("AddBook duplicate ISBN", func(t *testing.T) {
		body := marchallObj(t, library.NewBook{ISBN: "9780132350884", Title: "Dup", Author: "Dup"})
		req, rec := newAuthRequest(http.MethodPost, "/v1/library/books", token, body)
		ta.app.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{
			wantCode: http.StatusConflict,
			wantData: marchallObj(t, httpErr{Error: library.ErrBookExists.Error()}),
		}, rec)
	})

	t.Run("SearchBooks", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/library/books?search=clean", token)
		ta.app.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("code = %v; body = %s", rec.Code, rec.Body.String())
		}
		var infos []library.BookInfo
		unmarchallObj(t, rec, &infos)
		if len(infos) != 1 || !infos[0].IsAvailable {
			t.Errorf("infos = %+v", infos)
		}
	})

	t.Run("RetrieveBook", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/library/books/"+book.ID, token)
		ta.app.ServeHTTP(rec, req)

		var info library.BookInfo
		unmarchallObj(t, rec, &info)
		if rec.Code != http.StatusOK || info.Title != "Clean Code" {
			t.Errorf("code = %v; info = %+v", rec.Code, info)
		}
	})

	t.Run("RetrieveBook not found", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/library/books/nope", token)
		ta.app.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{
			wantCode: http.StatusNotFound,
			wantData: marchallObj(t, httpErr{Error: library.ErrBookNotFound.Error()}),
		}, rec)
	})

	t.Run("DeleteBook", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodDelete, "/v1/library/books/"+book.ID, token)
		ta.app.ServeHTTP(rec, req)
		if rec.Code != http.StatusNoContent {
			t.Errorf("code = %v; body = %s", rec.Code, rec.Body.String())
		}
	})
}

func TestLibraryAPI_circulation(t *testing.T) {
	ta := setup(t)
	librarian := ta.createUser(t, "libby01", "libby@campus.test", "Secr3t!pwd", []string{user.RoleAdminLibrarian})
	alice := ta.createUser(t, "alice01", "alice@campus.test", "Secr3t!pwd", []string{user.RoleStudent})
	bob := ta.createUser(t, "bobby01", "bob@campus.test", "Secr3t!pwd", []string{user.RoleStudent})
	book := ta.createBook(t, "9780132350884", "Clean Code", 1)

	libToken := getToken(t, librarian)
	aliceToken := getToken(t, alice)
	bobToken := getToken(t, bob)

	var iss library.Issue

	t.Run("Issue", func(t *testing.T) {
		body := marchallObj(t, library.IssueRequest{BookID: book.ID, StudentID: alice.ID})
		req, rec := newAuthRequest(http.MethodPost, "/v1/library/issues", libToken, body)
		ta.app.ServeHTTP(rec, req)

		if rec.Code != http.StatusCreated {
			t.Fatalf("code = %v; body = %s", rec.Code, rec.Body.String())
		}
		unmarchallObj(t, rec, &iss)
		if want := ta.now.AddDate(0, 0, 14); !iss.DueDate.Equal(want) {
			t.Errorf("dueDate = %v; want %v", iss.DueDate, want)
		}
	})

	t.Run("Issue last copy gone", func(t *testing.T) {
		body := marchallObj(t, library.IssueRequest{BookID: book.ID, StudentID: bob.ID})
		req, rec := newAuthRequest(http.MethodPost, "/v1/library/issues", libToken, body)
		ta.app.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{
			wantCode: http.StatusConflict,
			wantData: marchallObj(t, httpErr{Error: library.ErrNoCopiesAvailable.Error()}),
		}, rec)
	})

	t.Run("Renew own issue", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/v1/library/issues/"+iss.ID+"/renew", aliceToken)
		ta.app.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("code = %v; body = %s", rec.Code, rec.Body.String())
		}
		var renewed library.Issue
		unmarchallObj(t, rec, &renewed)
		if want := iss.DueDate.AddDate(0, 0, 7); !renewed.DueDate.Equal(want) || renewed.RenewCount != 1 {
			t.Errorf("renewed = %+v; wantDue %v", renewed, want)
		}
	})

	t.Run("Renew someone else's issue", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/v1/library/issues/"+iss.ID+"/renew", bobToken)
		ta.app.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{
			wantCode: http.StatusForbidden,
			wantData: marchallObj(t, httpErr{Error: library.ErrForbidden.Error()}),
		}, rec)
	})

	t.Run("Return", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/v1/library/issues/"+iss.ID+"/return", libToken)
		ta.app.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("code = %v; body = %s", rec.Code, rec.Body.String())
		}
		var rcpt library.ReturnReceipt
		unmarchallObj(t, rec, &rcpt)
		if rcpt.Fine != 0 || rcpt.BookTitle != "Clean Code" {
			t.Errorf("receipt = %+v", rcpt)
		}
	})

	t.Run("Return twice", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/v1/library/issues/"+iss.ID+"/return", libToken)
		ta.app.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{
			wantCode: http.StatusConflict,
			wantData: marchallObj(t, httpErr{Error: library.ErrAlreadyReturned.Error()}),
		}, rec)
	})
}

func TestLibraryAPI_fines(t *testing.T) {
	ta := setup(t)
	librarian := ta.createUser(t, "libby01", "libby@campus.test", "Secr3t!pwd", []string{user.RoleAdminLibrarian})
	alice := ta.createUser(t, "alice01", "alice@campus.test", "Secr3t!pwd", []string{user.RoleStudent})
	book := ta.createBook(t, "9780132350884", "Clean Code", 1)
	token := getToken(t, librarian)

	var iss library.Issue
	body := marchallObj(t, library.IssueRequest{BookID: book.ID, StudentID: alice.ID, DueDays: 1})
	req, rec := newAuthRequest(http.MethodPost, "/v1/library/issues", token, body)
	ta.app.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("code = %v; body = %s", rec.Code, rec.Body.String())
	}
	unmarchallObj(t, rec, &iss)

	// bring the book back 3 days late
	ta.now = ta.now.Add(4 * 24 * time.Hour)

	t.Run("Late return locks in the fine", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/v1/library/issues/"+iss.ID+"/return", token)
		ta.app.ServeHTTP(rec, req)

		var rcpt library.ReturnReceipt
		unmarchallObj(t, rec, &rcpt)
		if rec.Code != http.StatusOK || rcpt.Fine != 15 {
			t.Errorf("code = %v; receipt = %+v", rec.Code, rcpt)
		}
	})

	t.Run("Waive", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/v1/library/issues/"+iss.ID+"/fine/waive", token)
		ta.app.ServeHTTP(rec, req)

		var waived library.Issue
		unmarchallObj(t, rec, &waived)
		if rec.Code != http.StatusOK || waived.FineStatus != library.FineWaived || waived.Fine != 0 {
			t.Errorf("code = %v; issue = %+v", rec.Code, waived)
		}
	})

	t.Run("Paid after waive is a no-op", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/v1/library/issues/"+iss.ID+"/fine/paid", token)
		ta.app.ServeHTTP(rec, req)

		var got library.Issue
		unmarchallObj(t, rec, &got)
		if rec.Code != http.StatusOK || got.FineStatus != library.FineWaived {
			t.Errorf("code = %v; issue = %+v", rec.Code, got)
		}
	})
}

func TestLibraryAPI_overdueAndRemind(t *testing.T) {
	ta := setup(t)
	librarian := ta.createUser(t, "libby01", "libby@campus.test", "Secr3t!pwd", []string{user.RoleAdminLibrarian})
	alice := ta.createUser(t, "alice01", "alice@campus.test", "Secr3t!pwd", []string{user.RoleStudent})
	book := ta.createBook(t, "9780132350884", "Clean Code", 1)
	token := getToken(t, librarian)

	// the service clock sits 10 days in the past, so a 1-day loan is long
	// overdue by wall-clock time
	body := marchallObj(t, library.IssueRequest{BookID: book.ID, StudentID: alice.ID, DueDays: 1})
	req, rec := newAuthRequest(http.MethodPost, "/v1/library/issues", token, body)
	ta.app.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("code = %v; body = %s", rec.Code, rec.Body.String())
	}

	t.Run("Overdue", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/library/issues/overdue", token)
		ta.app.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("code = %v; body = %s", rec.Code, rec.Body.String())
		}
		var items []library.CheckedOut
		unmarchallObj(t, rec, &items)
		if len(items) != 1 {
			t.Fatalf("items = %+v", items)
		}
		if !items[0].IsOverdue || items[0].DaysOverdue < 8 || items[0].CurrentFine < 8*5 {
			t.Errorf("item = %+v", items[0])
		}
	})

	t.Run("Remind", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/v1/library/issues/overdue/remind", token)
		ta.app.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{
			wantCode: http.StatusOK,
			wantData: marchallObj(t, RemindResponse{Reminded: 1}),
		}, rec)
	})
}

func TestLibraryAPI_reserveAndShelf(t *testing.T) {
	ta := setup(t)
	librarian := ta.createUser(t, "libby01", "libby@campus.test", "Secr3t!pwd", []string{user.RoleAdminLibrarian})
	alice := ta.createUser(t, "alice01", "alice@campus.test", "Secr3t!pwd", []string{user.RoleStudent})
	faculty := ta.createUser(t, "prof001", "prof@campus.test", "Secr3t!pwd", []string{user.RoleFaculty})
	book := ta.createBook(t, "9780132350884", "Clean Code", 1)

	aliceToken := getToken(t, alice)

	t.Run("Reserve", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/v1/library/books/"+book.ID+"/reserve", aliceToken)
		ta.app.ServeHTTP(rec, req)

		if rec.Code != http.StatusCreated {
			t.Fatalf("code = %v; body = %s", rec.Code, rec.Body.String())
		}
		var iss library.Issue
		unmarchallObj(t, rec, &iss)
		if want := ta.now.AddDate(0, 0, 1); !iss.DueDate.Equal(want) {
			t.Errorf("dueDate = %v; want %v", iss.DueDate, want)
		}
	})

	t.Run("Reserve is for students", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/v1/library/books/"+book.ID+"/reserve", getToken(t, faculty))
		ta.app.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{
			wantCode: http.StatusForbidden,
			wantData: marchallObj(t, httpErr{Error: "permission denied"}),
		}, rec)
	})

	t.Run("MyBooks", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/library/my-books", aliceToken)
		ta.app.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("code = %v; body = %s", rec.Code, rec.Body.String())
		}
		var items []library.CheckedOut
		unmarchallObj(t, rec, &items)
		if len(items) != 1 || items[0].BookTitle != "Clean Code" {
			t.Errorf("items = %+v", items)
		}
	})

	t.Run("StudentBooks", func(t *testing.T) {
		path := fmt.Sprintf("/v1/library/students/%s/books", alice.ID)
		req, rec := newAuthRequest(http.MethodGet, path, getToken(t, librarian))
		ta.app.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("code = %v; body = %s", rec.Code, rec.Body.String())
		}
		var items []library.CheckedOut
		unmarchallObj(t, rec, &items)
		if len(items) != 1 {
			t.Errorf("items = %+v", items)
		}
	})
}
