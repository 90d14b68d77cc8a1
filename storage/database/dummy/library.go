package dummy

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/campushq/backend/core"
	"github.com/campushq/backend/core/library"
)

type libraryRepository struct {
	db *DB
}

var _ library.Repository = (*libraryRepository)(nil) // interface compliance check

func NewLibraryRepository(db *DB) *libraryRepository {
	return &libraryRepository{db: db}
}

// Catalog

func (repo libraryRepository) CreateBook(ctx context.Context, b library.Book, exec ...core.DBExecutor) (library.Book, error) {
	repo.db.dataMu.Lock()
	defer repo.db.dataMu.Unlock()

	for _, existing := range repo.db.books {
		if existing.ISBN == b.ISBN {
			return library.Book{}, library.ErrBookExists
		}
	}
	if b.ID == "" {
		b.ID = uuid.New().String()
	}
	repo.db.books[b.ID] = b
	return b, nil
}

func (repo libraryRepository) GetBookByID(ctx context.Context, id string, exec ...core.DBExecutor) (library.Book, error) {
	repo.db.dataMu.RLock()
	defer repo.db.dataMu.RUnlock()

	if b, ok := repo.db.books[id]; ok {
		return b, nil
	}
	return library.Book{}, library.ErrBookNotFound
}

func (repo libraryRepository) GetBookByISBN(ctx context.Context, isbn string, exec ...core.DBExecutor) (library.Book, error) {
	repo.db.dataMu.RLock()
	defer repo.db.dataMu.RUnlock()

	for _, b := range repo.db.books {
		if b.ISBN == isbn {
			return b, nil
		}
	}
	return library.Book{}, library.ErrBookNotFound
}

func (repo libraryRepository) GetBookForUpdate(ctx context.Context, id string, tx core.DBTransactor) (library.Book, error) {
	// row locking is the transaction mutex's job here
	return repo.GetBookByID(ctx, id)
}

func (repo libraryRepository) SearchBooks(ctx context.Context, filter library.BookQueryFilter, exec ...core.DBExecutor) ([]library.Book, error) {
	repo.db.dataMu.RLock()
	defer repo.db.dataMu.RUnlock()

	var books []library.Book
	for _, b := range repo.db.books {
		if filter.Search != "" {
			s := strings.ToLower(filter.Search)
			if !strings.Contains(strings.ToLower(b.Title), s) &&
				!strings.Contains(strings.ToLower(b.Author), s) &&
				!strings.Contains(strings.ToLower(b.ISBN), s) {
				continue
			}
		}
		if filter.Category != "" && b.Category != filter.Category {
			continue
		}
		books = append(books, b)
	}
	sort.Slice(books, func(i, j int) bool { return books[i].Title < books[j].Title })
	return books, nil
}

func (repo libraryRepository) UpdateBook(ctx context.Context, b library.Book, exec ...core.DBExecutor) (library.Book, error) {
	repo.db.dataMu.Lock()
	defer repo.db.dataMu.Unlock()

	if _, ok := repo.db.books[b.ID]; !ok {
		return library.Book{}, library.ErrBookNotFound
	}
	repo.db.books[b.ID] = b
	return b, nil
}

func (repo libraryRepository) DeleteBook(ctx context.Context, id string) error {
	repo.db.dataMu.Lock()
	defer repo.db.dataMu.Unlock()

	if _, ok := repo.db.books[id]; !ok {
		return library.ErrBookNotFound
	}
	delete(repo.db.books, id)
	for issID, iss := range repo.db.issues {
		if iss.BookID == id {
			delete(repo.db.issues, issID)
		}
	}
	return nil
}

func (repo libraryRepository) AdjustAvailableCopies(ctx context.Context, bookID string, delta int, exec ...core.DBExecutor) (library.Book, error) {
	repo.db.dataMu.Lock()
	defer repo.db.dataMu.Unlock()

	b, ok := repo.db.books[bookID]
	if !ok {
		return library.Book{}, library.ErrBookNotFound
	}
	next := b.AvailableCopies + delta
	if next < 0 || next > b.TotalCopies {
		return library.Book{}, library.ErrNoCopiesAvailable
	}
	b.AvailableCopies = next
	repo.db.books[bookID] = b
	return b, nil
}

// Ledger

func (repo libraryRepository) CreateIssue(ctx context.Context, iss library.Issue, exec ...core.DBExecutor) (library.Issue, error) {
	repo.db.dataMu.Lock()
	defer repo.db.dataMu.Unlock()

	if iss.ID == "" {
		iss.ID = uuid.New().String()
	}
	repo.db.issues[iss.ID] = iss
	return iss, nil
}

func (repo libraryRepository) GetIssueByID(ctx context.Context, id string, exec ...core.DBExecutor) (library.Issue, error) {
	repo.db.dataMu.RLock()
	defer repo.db.dataMu.RUnlock()

	if iss, ok := repo.db.issues[id]; ok {
		return iss, nil
	}
	return library.Issue{}, library.ErrIssueNotFound
}

func (repo libraryRepository) GetIssueForUpdate(ctx context.Context, id string, tx core.DBTransactor) (library.Issue, error) {
	return repo.GetIssueByID(ctx, id)
}

func (repo libraryRepository) UpdateIssue(ctx context.Context, iss library.Issue, exec ...core.DBExecutor) (library.Issue, error) {
	repo.db.dataMu.Lock()
	defer repo.db.dataMu.Unlock()

	if _, ok := repo.db.issues[iss.ID]; !ok {
		return library.Issue{}, library.ErrIssueNotFound
	}
	repo.db.issues[iss.ID] = iss
	return iss, nil
}

func (repo libraryRepository) CountActiveIssues(ctx context.Context, studentID string, exec ...core.DBExecutor) (int, error) {
	repo.db.dataMu.RLock()
	defer repo.db.dataMu.RUnlock()

	var count int
	for _, iss := range repo.db.issues {
		if iss.StudentID == studentID && !iss.IsReturned {
			count++
		}
	}
	return count, nil
}

func (repo libraryRepository) HasActiveIssues(ctx context.Context, bookID string, exec ...core.DBExecutor) (bool, error) {
	repo.db.dataMu.RLock()
	defer repo.db.dataMu.RUnlock()

	for _, iss := range repo.db.issues {
		if iss.BookID == bookID && !iss.IsReturned {
			return true, nil
		}
	}
	return false, nil
}

func (repo libraryRepository) detail(iss library.Issue) library.IssueDetail {
	d := library.IssueDetail{Issue: iss}
	if b, ok := repo.db.books[iss.BookID]; ok {
		d.BookTitle = b.Title
		d.BookAuthor = b.Author
		d.BookISBN = b.ISBN
		d.BookCategory = b.Category
	}
	if u, ok := repo.db.users[iss.StudentID]; ok {
		d.StudentName = u.Name
		d.StudentEmail = u.Email
		d.StudentBranch = u.Branch
	}
	return d
}

func (repo libraryRepository) queryIssueDetails(match func(library.Issue) bool) []library.IssueDetail {
	repo.db.dataMu.RLock()
	defer repo.db.dataMu.RUnlock()

	var details []library.IssueDetail
	for _, iss := range repo.db.issues {
		if match(iss) {
			details = append(details, repo.detail(iss))
		}
	}
	sort.Slice(details, func(i, j int) bool { return details[i].DueDate.Before(details[j].DueDate) })
	return details
}

func (repo libraryRepository) QueryActiveIssuesByStudent(ctx context.Context, studentID string, exec ...core.DBExecutor) ([]library.IssueDetail, error) {
	return repo.queryIssueDetails(func(iss library.Issue) bool {
		return iss.StudentID == studentID && !iss.IsReturned
	}), nil
}

func (repo libraryRepository) QueryOverdueIssues(ctx context.Context, asOf time.Time, exec ...core.DBExecutor) ([]library.IssueDetail, error) {
	return repo.queryIssueDetails(func(iss library.Issue) bool {
		return !iss.IsReturned && iss.DueDate.Before(asOf)
	}), nil
}
