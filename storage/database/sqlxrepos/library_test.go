package sqlxrepos

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/campushq/backend/core/library"
)

func newMockRepo(t *testing.T) (*libraryRepository, sqlmock.Sqlmock, func()) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("opening sqlmock: %v", err)
	}
	repo := NewLibraryRepository(sqlx.NewDb(mockDB, "sqlmock"))
	return repo, mock, func() {
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unmet expectations: %v", err)
		}
		_ = mockDB.Close()
	}
}

func bookRow(id string, available, total int) *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "isbn", "title", "author", "publisher", "category",
		"total_copies", "available_copies", "cover_url", "added_at",
	}).AddRow(id, "9780132350884", "Clean Code", "Robert C. Martin", "", "",
		total, available, "", time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
}

func TestAdjustAvailableCopies(t *testing.T) {
	adjustQ := regexp.QuoteMeta(`UPDATE book SET available_copies = available_copies + $2`)
	getQ := regexp.QuoteMeta(`SELECT ` + bookCols + ` FROM book WHERE id = $1`)

	t.Run("decrement lands", func(t *testing.T) {
		repo, mock, done := newMockRepo(t)
		defer done()

		mock.ExpectQuery(adjustQ).
			WithArgs("b1", -1).
			WillReturnRows(bookRow("b1", 0, 1))

		b, err := repo.AdjustAvailableCopies(context.Background(), "b1", -1)
		if err != nil {
			t.Fatalf("AdjustAvailableCopies() error = %v", err)
		}
		if b.AvailableCopies != 0 {
			t.Errorf("availableCopies = %d, want 0", b.AvailableCopies)
		}
	})

	t.Run("out of bounds", func(t *testing.T) {
		repo, mock, done := newMockRepo(t)
		defer done()

		// the conditional update matches no row, but the book itself exists
		mock.ExpectQuery(adjustQ).
			WithArgs("b1", -1).
			WillReturnRows(sqlmock.NewRows(nil))
		mock.ExpectQuery(getQ).
			WithArgs("b1").
			WillReturnRows(bookRow("b1", 0, 1))

		_, err := repo.AdjustAvailableCopies(context.Background(), "b1", -1)
		if !errors.Is(err, library.ErrNoCopiesAvailable) {
			t.Errorf("AdjustAvailableCopies() error = %v, want ErrNoCopiesAvailable", err)
		}
	})

	t.Run("book gone", func(t *testing.T) {
		repo, mock, done := newMockRepo(t)
		defer done()

		mock.ExpectQuery(adjustQ).
			WithArgs("nope", 1).
			WillReturnRows(sqlmock.NewRows(nil))
		mock.ExpectQuery(getQ).
			WithArgs("nope").
			WillReturnRows(sqlmock.NewRows(nil))

		_, err := repo.AdjustAvailableCopies(context.Background(), "nope", 1)
		if !errors.Is(err, library.ErrBookNotFound) {
			t.Errorf("AdjustAvailableCopies() error = %v, want ErrBookNotFound", err)
		}
	})
}

func TestGetBookForUpdate(t *testing.T) {
	repo, mock, done := newMockRepo(t)
	defer done()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT `+bookCols+` FROM book WHERE id = $1 FOR UPDATE`)).
		WithArgs("b1").
		WillReturnRows(bookRow("b1", 1, 1))
	mock.ExpectCommit()

	tx, err := repo.db.DB.Begin()
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	b, err := repo.GetBookForUpdate(context.Background(), "b1", tx)
	if err != nil {
		t.Fatalf("GetBookForUpdate() error = %v", err)
	}
	if b.ID != "b1" {
		t.Errorf("GetBookForUpdate() id = %q", b.ID)
	}
	if err = tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
}

func TestCreateBook_duplicateISBN(t *testing.T) {
	repo, mock, done := newMockRepo(t)
	defer done()

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO book (`+bookCols+`)`)).
		WillReturnError(&pq.Error{Code: "23505", Constraint: "book_isbn_key"})

	_, err := repo.CreateBook(context.Background(), library.Book{
		ISBN: "9780132350884", Title: "Clean Code", Author: "Robert C. Martin",
		TotalCopies: 1, AvailableCopies: 1,
	})
	if !errors.Is(err, library.ErrBookExists) {
		t.Errorf("CreateBook() error = %v, want ErrBookExists", err)
	}
}

func TestGetIssueByID_notFound(t *testing.T) {
	repo, mock, done := newMockRepo(t)
	defer done()

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT `+issueCols+` FROM book_issue WHERE id = $1`)).
		WithArgs("nope").
		WillReturnRows(sqlmock.NewRows(nil))

	_, err := repo.GetIssueByID(context.Background(), "nope")
	if !errors.Is(err, library.ErrIssueNotFound) {
		t.Errorf("GetIssueByID() error = %v, want ErrIssueNotFound", err)
	}
}

func TestQueryOverdueIssues(t *testing.T) {
	repo, mock, done := newMockRepo(t)
	defer done()

	asOf := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	due := asOf.AddDate(0, 0, -3)
	rows := sqlmock.NewRows([]string{
		"id", "book_id", "student_id", "issue_date", "due_date", "return_date", "is_returned",
		"fine", "fine_status", "renew_count", "created_at", "updated_at",
		"title", "author", "isbn", "category",
		"name", "email", "branch",
	}).AddRow(
		"i1", "b1", "u1", due.AddDate(0, 0, -14), due, nil, false,
		0, "none", 0, due, due,
		"Clean Code", "Robert C. Martin", "9780132350884", "",
		"Alice", nil, nil, // students without an email/branch still list
	)

	mock.ExpectQuery(`NOT i\.is_returned AND i\.due_date < \$1 ORDER BY i\.due_date ASC`).
		WithArgs(asOf).
		WillReturnRows(rows)

	out, err := repo.QueryOverdueIssues(context.Background(), asOf)
	if err != nil {
		t.Fatalf("QueryOverdueIssues() error = %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("QueryOverdueIssues() returned %d rows, want 1", len(out))
	}
	d := out[0]
	if d.BookTitle != "Clean Code" || d.StudentName != "Alice" {
		t.Errorf("detail = %q by %q", d.BookTitle, d.StudentName)
	}
	if d.StudentEmail != "" || d.StudentBranch != "" {
		t.Errorf("null email/branch scanned as %q/%q", d.StudentEmail, d.StudentBranch)
	}
	if d.ReturnDate != nil {
		t.Errorf("returnDate = %v, want nil", d.ReturnDate)
	}
}

func TestUpdateIssue_notFound(t *testing.T) {
	repo, mock, done := newMockRepo(t)
	defer done()

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE book_issue SET`)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	_, err := repo.UpdateIssue(context.Background(), library.Issue{ID: "nope", FineStatus: library.FineNone})
	if !errors.Is(err, library.ErrIssueNotFound) {
		t.Errorf("UpdateIssue() error = %v, want ErrIssueNotFound", err)
	}
}
