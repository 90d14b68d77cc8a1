package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/campushq/backend/core"
	"github.com/campushq/backend/core/library"
)

const (
	bookCols  = `id, isbn, title, author, publisher, category, total_copies, available_copies, cover_url, added_at`
	issueCols = `id, book_id, student_id, issue_date, due_date, return_date, is_returned, fine, fine_status, renew_count, created_at, updated_at`
)

// issueDetailQuery joins the issue ledger with the catalog and student bits
// listings and reminder emails need.
const issueDetailQuery = `
SELECT i.id, i.book_id, i.student_id, i.issue_date, i.due_date, i.return_date, i.is_returned,
       i.fine, i.fine_status, i.renew_count, i.created_at, i.updated_at,
       b.title, b.author, b.isbn, b.category,
       u.name, u.email, u.branch
FROM book_issue i
JOIN book b ON b.id = i.book_id
JOIN "user" u ON u.id = i.student_id`

type libraryRepository struct {
	db *sqlx.DB
}

var _ library.Repository = (*libraryRepository)(nil) // interface compliance check

func NewLibraryRepository(db *sqlx.DB) *libraryRepository {
	return &libraryRepository{db: db}
}

func (repo libraryRepository) getExec(exec []core.DBExecutor) core.DBExecutor {
	if len(exec) > 0 {
		return exec[0]
	}
	return repo.db
}

func scanBook(s rowScanner) (library.Book, error) {
	var b library.Book
	err := s.Scan(
		&b.ID, &b.ISBN, &b.Title, &b.Author, &b.Publisher, &b.Category,
		&b.TotalCopies, &b.AvailableCopies, &b.CoverURL, &b.AddedAt,
	)
	return b, err
}

func scanIssue(s rowScanner) (library.Issue, error) {
	var (
		iss        library.Issue
		returnDate null.Time
	)
	err := s.Scan(
		&iss.ID, &iss.BookID, &iss.StudentID, &iss.IssueDate, &iss.DueDate, &returnDate,
		&iss.IsReturned, &iss.Fine, &iss.FineStatus, &iss.RenewCount, &iss.CreatedAt, &iss.UpdatedAt,
	)
	if returnDate.Valid {
		iss.ReturnDate = &returnDate.Time
	}
	return iss, err
}

func scanIssueDetail(s rowScanner) (library.IssueDetail, error) {
	var (
		d          library.IssueDetail
		returnDate null.Time
		email      null.String
		branch     null.String
	)
	err := s.Scan(
		&d.ID, &d.BookID, &d.StudentID, &d.IssueDate, &d.DueDate, &returnDate,
		&d.IsReturned, &d.Fine, &d.FineStatus, &d.RenewCount, &d.CreatedAt, &d.UpdatedAt,
		&d.BookTitle, &d.BookAuthor, &d.BookISBN, &d.BookCategory,
		&d.StudentName, &email, &branch,
	)
	if returnDate.Valid {
		d.ReturnDate = &returnDate.Time
	}
	d.StudentEmail = email.String
	d.StudentBranch = branch.String
	return d, err
}

func returnDateArg(iss library.Issue) interface{} {
	if iss.ReturnDate == nil {
		return nil
	}
	return *iss.ReturnDate
}

// Catalog

func (repo libraryRepository) CreateBook(ctx context.Context, b library.Book, exec ...core.DBExecutor) (library.Book, error) {
	if b.ID == "" {
		b.ID = uuid.New().String()
	}
	q := `INSERT INTO book (` + bookCols + `) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	_, err := repo.getExec(exec).ExecContext(ctx, q,
		b.ID, b.ISBN, b.Title, b.Author, b.Publisher, b.Category,
		b.TotalCopies, b.AvailableCopies, b.CoverURL, b.AddedAt,
	)
	if err != nil {
		if isUniqueViolation(err, "book_isbn_key") {
			return library.Book{}, library.ErrBookExists
		}
		return library.Book{}, errors.Wrap(err, "inserting book")
	}
	return b, nil
}

func (repo libraryRepository) getBookWhere(ctx context.Context, where, suffix string, args []interface{}, exec []core.DBExecutor) (library.Book, error) {
	q := `SELECT ` + bookCols + ` FROM book WHERE ` + where + suffix
	b, err := scanBook(repo.getExec(exec).QueryRowContext(ctx, q, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return library.Book{}, library.ErrBookNotFound
	}
	if err != nil {
		return library.Book{}, errors.Wrap(err, "getting book")
	}
	return b, nil
}

func (repo libraryRepository) GetBookByID(ctx context.Context, id string, exec ...core.DBExecutor) (library.Book, error) {
	return repo.getBookWhere(ctx, `id = $1`, ``, []interface{}{id}, exec)
}

func (repo libraryRepository) GetBookByISBN(ctx context.Context, isbn string, exec ...core.DBExecutor) (library.Book, error) {
	return repo.getBookWhere(ctx, `isbn = $1`, ``, []interface{}{isbn}, exec)
}

func (repo libraryRepository) GetBookForUpdate(ctx context.Context, id string, tx core.DBTransactor) (library.Book, error) {
	return repo.getBookWhere(ctx, `id = $1`, ` FOR UPDATE`, []interface{}{id}, []core.DBExecutor{tx})
}

func (repo libraryRepository) SearchBooks(ctx context.Context, filter library.BookQueryFilter, exec ...core.DBExecutor) ([]library.Book, error) {
	q := `SELECT ` + bookCols + ` FROM book WHERE TRUE`
	var args []interface{}
	arg := func(v interface{}) string {
		args = append(args, v)
		return "$" + itoa(len(args))
	}

	if filter.Search != "" {
		p := arg("%" + filter.Search + "%")
		q += ` AND (title ILIKE ` + p + ` OR author ILIKE ` + p + ` OR isbn ILIKE ` + p + `)`
	}
	if filter.Category != "" {
		q += ` AND category = ` + arg(filter.Category)
	}
	q += ` ORDER BY title ASC`

	rows, err := repo.getExec(exec).QueryContext(ctx, q, args...)
	if err != nil {
		return nil, errors.Wrap(err, "searching books")
	}
	defer func() { _ = rows.Close() }()

	var books []library.Book
	for rows.Next() {
		b, err := scanBook(rows)
		if err != nil {
			return nil, errors.Wrap(err, "searching books")
		}
		books = append(books, b)
	}
	return books, errors.Wrap(rows.Err(), "searching books")
}

func (repo libraryRepository) UpdateBook(ctx context.Context, b library.Book, exec ...core.DBExecutor) (library.Book, error) {
	q := `UPDATE book SET isbn = $2, title = $3, author = $4, publisher = $5, category = $6,
		total_copies = $7, available_copies = $8, cover_url = $9 WHERE id = $1`
	res, err := repo.getExec(exec).ExecContext(ctx, q,
		b.ID, b.ISBN, b.Title, b.Author, b.Publisher, b.Category,
		b.TotalCopies, b.AvailableCopies, b.CoverURL,
	)
	if err != nil {
		return library.Book{}, errors.Wrap(err, "updating book")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return library.Book{}, library.ErrBookNotFound
	}
	return b, nil
}

func (repo libraryRepository) DeleteBook(ctx context.Context, id string) error {
	res, err := repo.db.ExecContext(ctx, `DELETE FROM book WHERE id = $1`, id)
	if err != nil {
		return errors.Wrap(err, "deleting book")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return library.ErrBookNotFound
	}
	return nil
}

func (repo libraryRepository) AdjustAvailableCopies(ctx context.Context, bookID string, delta int, exec ...core.DBExecutor) (library.Book, error) {
	// conditional update: only lands when the counter stays within bounds
	q := `UPDATE book SET available_copies = available_copies + $2
		WHERE id = $1 AND available_copies + $2 >= 0 AND available_copies + $2 <= total_copies
		RETURNING ` + bookCols
	b, err := scanBook(repo.getExec(exec).QueryRowContext(ctx, q, bookID, delta))
	if errors.Is(err, sql.ErrNoRows) {
		// either the book is gone or the adjustment would leave the bounds
		if _, getErr := repo.GetBookByID(ctx, bookID, exec...); getErr != nil {
			return library.Book{}, getErr
		}
		return library.Book{}, library.ErrNoCopiesAvailable
	}
	if err != nil {
		return library.Book{}, errors.Wrap(err, "adjusting available copies")
	}
	return b, nil
}

// Ledger

func (repo libraryRepository) CreateIssue(ctx context.Context, iss library.Issue, exec ...core.DBExecutor) (library.Issue, error) {
	if iss.ID == "" {
		iss.ID = uuid.New().String()
	}
	q := `INSERT INTO book_issue (` + issueCols + `) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`
	_, err := repo.getExec(exec).ExecContext(ctx, q,
		iss.ID, iss.BookID, iss.StudentID, iss.IssueDate, iss.DueDate, returnDateArg(iss),
		iss.IsReturned, iss.Fine, iss.FineStatus, iss.RenewCount, iss.CreatedAt, iss.UpdatedAt,
	)
	if err != nil {
		return library.Issue{}, errors.Wrap(err, "inserting issue")
	}
	return iss, nil
}

func (repo libraryRepository) getIssueWhere(ctx context.Context, suffix string, id string, exec []core.DBExecutor) (library.Issue, error) {
	q := `SELECT ` + issueCols + ` FROM book_issue WHERE id = $1` + suffix
	iss, err := scanIssue(repo.getExec(exec).QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return library.Issue{}, library.ErrIssueNotFound
	}
	if err != nil {
		return library.Issue{}, errors.Wrap(err, "getting issue")
	}
	return iss, nil
}

func (repo libraryRepository) GetIssueByID(ctx context.Context, id string, exec ...core.DBExecutor) (library.Issue, error) {
	return repo.getIssueWhere(ctx, ``, id, exec)
}

func (repo libraryRepository) GetIssueForUpdate(ctx context.Context, id string, tx core.DBTransactor) (library.Issue, error) {
	return repo.getIssueWhere(ctx, ` FOR UPDATE`, id, []core.DBExecutor{tx})
}

func (repo libraryRepository) UpdateIssue(ctx context.Context, iss library.Issue, exec ...core.DBExecutor) (library.Issue, error) {
	q := `UPDATE book_issue SET due_date = $2, return_date = $3, is_returned = $4,
		fine = $5, fine_status = $6, renew_count = $7, updated_at = $8 WHERE id = $1`
	res, err := repo.getExec(exec).ExecContext(ctx, q,
		iss.ID, iss.DueDate, returnDateArg(iss), iss.IsReturned,
		iss.Fine, iss.FineStatus, iss.RenewCount, iss.UpdatedAt,
	)
	if err != nil {
		return library.Issue{}, errors.Wrap(err, "updating issue")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return library.Issue{}, library.ErrIssueNotFound
	}
	return iss, nil
}

func (repo libraryRepository) CountActiveIssues(ctx context.Context, studentID string, exec ...core.DBExecutor) (int, error) {
	var count int
	q := `SELECT count(*) FROM book_issue WHERE student_id = $1 AND NOT is_returned`
	err := repo.getExec(exec).QueryRowContext(ctx, q, studentID).Scan(&count)
	return count, errors.Wrap(err, "counting active issues")
}

func (repo libraryRepository) HasActiveIssues(ctx context.Context, bookID string, exec ...core.DBExecutor) (bool, error) {
	var active bool
	q := `SELECT EXISTS (SELECT 1 FROM book_issue WHERE book_id = $1 AND NOT is_returned)`
	err := repo.getExec(exec).QueryRowContext(ctx, q, bookID).Scan(&active)
	return active, errors.Wrap(err, "checking active issues")
}

func (repo libraryRepository) queryIssueDetails(ctx context.Context, where string, args []interface{}, exec []core.DBExecutor) ([]library.IssueDetail, error) {
	q := issueDetailQuery + ` WHERE ` + where + ` ORDER BY i.due_date ASC`
	rows, err := repo.getExec(exec).QueryContext(ctx, q, args...)
	if err != nil {
		return nil, errors.Wrap(err, "querying issues")
	}
	defer func() { _ = rows.Close() }()

	var details []library.IssueDetail
	for rows.Next() {
		d, err := scanIssueDetail(rows)
		if err != nil {
			return nil, errors.Wrap(err, "querying issues")
		}
		details = append(details, d)
	}
	return details, errors.Wrap(rows.Err(), "querying issues")
}

func (repo libraryRepository) QueryActiveIssuesByStudent(ctx context.Context, studentID string, exec ...core.DBExecutor) ([]library.IssueDetail, error) {
	return repo.queryIssueDetails(ctx, `i.student_id = $1 AND NOT i.is_returned`, []interface{}{studentID}, exec)
}

func (repo libraryRepository) QueryOverdueIssues(ctx context.Context, asOf time.Time, exec ...core.DBExecutor) ([]library.IssueDetail, error) {
	return repo.queryIssueDetails(ctx, `NOT i.is_returned AND i.due_date < $1`, []interface{}{asOf}, exec)
}
