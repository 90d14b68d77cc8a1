package library

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/campushq/backend/core"
	"github.com/campushq/backend/core/user"
)

var (
	// errors
	ErrBookNotFound        = errors.New("book not found")
	ErrBookExists          = errors.New("a book with this ISBN already exists")
	ErrIssueNotFound       = errors.New("issue record not found")
	ErrStudentNotFound     = errors.New("student not found")
	ErrNoCopiesAvailable   = errors.New("no copies available")
	ErrIssueLimitReached   = errors.New("issue limit reached")
	ErrAlreadyReturned     = errors.New("book already returned")
	ErrRenewalLimitReached = errors.New("maximum renewals reached")
	ErrForbidden           = errors.New("not allowed to renew this issue")
	ErrHasActiveIssues     = errors.New("cannot delete book with active issues")
	ErrISBNNotFound        = errors.New("no details found for ISBN")
)

type (
	Repository interface {
		// catalog
		CreateBook(ctx context.Context, b Book, exec ...core.DBExecutor) (Book, error)
		GetBookByID(ctx context.Context, id string, exec ...core.DBExecutor) (Book, error)
		GetBookByISBN(ctx context.Context, isbn string, exec ...core.DBExecutor) (Book, error)
		// GetBookForUpdate locks the book row for the duration of tx,
		// serializing per-copy mutations.
		GetBookForUpdate(ctx context.Context, id string, tx core.DBTransactor) (Book, error)
		SearchBooks(ctx context.Context, filter BookQueryFilter, exec ...core.DBExecutor) ([]Book, error)
		UpdateBook(ctx context.Context, b Book, exec ...core.DBExecutor) (Book, error)
		// DeleteBook removes the book and cascades to its (returned) issue history.
		DeleteBook(ctx context.Context, id string) error
		// AdjustAvailableCopies applies delta conditionally: the update only
		// lands when the result stays within [0, total_copies]; otherwise it
		// fails with ErrNoCopiesAvailable and no state changes.
		AdjustAvailableCopies(ctx context.Context, bookID string, delta int, exec ...core.DBExecutor) (Book, error)

		// ledger
		CreateIssue(ctx context.Context, iss Issue, exec ...core.DBExecutor) (Issue, error)
		GetIssueByID(ctx context.Context, id string, exec ...core.DBExecutor) (Issue, error)
		// GetIssueForUpdate locks the issue row for the duration of tx,
		// serializing the renewCount/isReturned read-modify-write.
		GetIssueForUpdate(ctx context.Context, id string, tx core.DBTransactor) (Issue, error)
		UpdateIssue(ctx context.Context, iss Issue, exec ...core.DBExecutor) (Issue, error)
		CountActiveIssues(ctx context.Context, studentID string, exec ...core.DBExecutor) (int, error)
		HasActiveIssues(ctx context.Context, bookID string, exec ...core.DBExecutor) (bool, error)
		QueryActiveIssuesByStudent(ctx context.Context, studentID string, exec ...core.DBExecutor) ([]IssueDetail, error)
		// QueryOverdueIssues returns unreturned issues with dueDate < asOf.
		QueryOverdueIssues(ctx context.Context, asOf time.Time, exec ...core.DBExecutor) ([]IssueDetail, error)
	}

	// StudentResolver maps a front-desk identifier to a student account.
	StudentResolver interface {
		ResolveStudent(ctx context.Context, identifier string) (user.User, error)
	}

	// Notifier delivers an in-app notification, fire-and-forget.
	Notifier interface {
		NotifyUser(ctx context.Context, userID, kind, title, message string)
	}

	// MetadataFinder resolves catalog metadata for an ISBN.
	MetadataFinder interface {
		LookupISBN(ctx context.Context, isbn string) (BookMeta, error)
	}

	Service struct {
		db       core.DB
		repo     Repository
		students StudentResolver
		notifier Notifier
		mailSvc  core.EmailService
		meta     MetadataFinder
		logger   core.Logger
		cfg      core.LibraryConfig

		sendTimeout time.Duration
		nowFunc     func() time.Time // mockable
	}
)

func NewService(
	db core.DB,
	repo Repository,
	students StudentResolver,
	notifier Notifier,
	mailSvc core.EmailService,
	meta MetadataFinder,
	logger core.Logger,
	cfg core.LibraryConfig,
	sendTimeout time.Duration,
) *Service {
	return &Service{
		db:          db,
		repo:        repo,
		students:    students,
		notifier:    notifier,
		mailSvc:     mailSvc,
		meta:        meta,
		logger:      logger,
		cfg:         cfg,
		sendTimeout: sendTimeout,
		nowFunc:     time.Now,
	}
}

// NewServiceMock returns a Service on a fixed clock; tests only.
func NewServiceMock(
	db core.DB,
	repo Repository,
	students StudentResolver,
	notifier Notifier,
	mailSvc core.EmailService,
	meta MetadataFinder,
	logger core.Logger,
	cfg core.LibraryConfig,
	sendTimeout time.Duration,
	now func() time.Time,
) *Service {
	svc := NewService(db, repo, students, notifier, mailSvc, meta, logger, cfg, sendTimeout)
	svc.nowFunc = now
	return svc
}

func (svc *Service) now() time.Time { return svc.nowFunc().UTC() }

// Catalog

// AddBook catalogs a new title. Missing title/author are autofilled from the
// ISBN lookup when possible.
func (svc *Service) AddBook(ctx context.Context, nb NewBook) (Book, error) {
	if err := nb.Validate(); err != nil {
		return Book{}, err
	}

	if (nb.Title == "" || nb.Author == "") && svc.meta != nil {
		if meta, err := svc.meta.LookupISBN(ctx, nb.ISBN); err == nil {
			if nb.Title == "" {
				nb.Title = meta.Title
			}
			if nb.Author == "" {
				nb.Author = meta.Author
			}
			if nb.Publisher == "" {
				nb.Publisher = meta.Publisher
			}
			if nb.CoverURL == "" {
				nb.CoverURL = meta.CoverURL
			}
		} else if !errors.Is(err, ErrISBNNotFound) {
			svc.logger.Warn(fmt.Sprintf("ISBN lookup failed for %s", nb.ISBN), err)
		}
	}
	if nb.Title == "" || nb.Author == "" {
		return Book{}, core.NewValidationError(
			errors.New("title and author are required (or provide a known ISBN for auto-fill)"))
	}

	if _, err := svc.repo.GetBookByISBN(ctx, nb.ISBN); err == nil {
		return Book{}, ErrBookExists
	} else if !errors.Is(err, ErrBookNotFound) {
		return Book{}, err
	}

	total := nb.TotalCopies
	if total == 0 {
		total = 1
	}
	b := Book{
		ISBN:            nb.ISBN,
		Title:           nb.Title,
		Author:          nb.Author,
		Publisher:       nb.Publisher,
		Category:        nb.Category,
		TotalCopies:     total,
		AvailableCopies: total,
		CoverURL:        nb.CoverURL,
		AddedAt:         svc.now(),
	}
	return svc.repo.CreateBook(ctx, b)
}

func (svc *Service) GetBook(ctx context.Context, id string) (Book, error) {
	return svc.repo.GetBookByID(ctx, id)
}

// SearchBooks lists catalog entries matching the filter, each flagged with
// live availability.
func (svc *Service) SearchBooks(ctx context.Context, filter BookQueryFilter) ([]BookInfo, error) {
	filter.Clean()
	books, err := svc.repo.SearchBooks(ctx, filter)
	if err != nil {
		return nil, err
	}
	infos := make([]BookInfo, 0, len(books))
	for _, b := range books {
		infos = append(infos, BookInfo{Book: b, IsAvailable: b.IsAvailable()})
	}
	return infos, nil
}

// UpdateBook edits catalog fields. A totalCopies change shifts
// availableCopies by the same delta, floored at 0, inside one transaction so
// a concurrent issue/return cannot interleave with the shift.
func (svc *Service) UpdateBook(ctx context.Context, id string, ub UpdateBook) (b Book, err error) {
	if err = ub.Validate(); err != nil {
		return Book{}, err
	}

	tx, err := svc.db.BeginTx(ctx, nil)
	if err != nil {
		return Book{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	b, err = svc.repo.GetBookForUpdate(ctx, id, tx)
	if err != nil {
		return Book{}, err
	}

	if ub.Title != "" {
		b.Title = ub.Title
	}
	if ub.Author != "" {
		b.Author = ub.Author
	}
	if ub.Publisher != "" {
		b.Publisher = ub.Publisher
	}
	if ub.Category != "" {
		b.Category = ub.Category
	}
	if ub.CoverURL != "" {
		b.CoverURL = ub.CoverURL
	}
	if ub.TotalCopies != nil {
		delta := *ub.TotalCopies - b.TotalCopies
		b.TotalCopies = *ub.TotalCopies
		b.AvailableCopies += delta
		if b.AvailableCopies < 0 {
			b.AvailableCopies = 0
		}
	}

	if b, err = svc.repo.UpdateBook(ctx, b, tx); err != nil {
		return Book{}, err
	}
	err = tx.Commit()
	return b, err
}

// DeleteBook removes a catalog entry. Refused while any copy is still out.
func (svc *Service) DeleteBook(ctx context.Context, id string) error {
	active, err := svc.repo.HasActiveIssues(ctx, id)
	if err != nil {
		return err
	}
	if active {
		return ErrHasActiveIssues
	}
	return svc.repo.DeleteBook(ctx, id)
}

// LookupISBN is the catalog-form passthrough to the metadata service.
func (svc *Service) LookupISBN(ctx context.Context, isbn string) (BookMeta, error) {
	if svc.meta == nil {
		return BookMeta{}, ErrISBNNotFound
	}
	return svc.meta.LookupISBN(ctx, core.CleanString(isbn))
}

// Circulation

// Issue checks a copy out to a student. The availability check, the counter
// decrement and the issue-record insert commit atomically: the book row is
// locked for the whole transaction so two concurrent issues of the last copy
// cannot both succeed.
func (svc *Service) Issue(ctx context.Context, bookID, studentID string, dueDays int) (Issue, error) {
	if dueDays <= 0 {
		dueDays = svc.cfg.LoanPeriodDays
	}

	student, err := svc.students.ResolveStudent(ctx, studentID)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return Issue{}, ErrStudentNotFound
		}
		return Issue{}, err
	}

	iss, book, err := svc.createIssue(ctx, bookID, student.ID, dueDays)
	if err != nil {
		return Issue{}, err
	}

	svc.notifier.NotifyUser(ctx, student.ID, "library", "Book Issued",
		fmt.Sprintf("Book '%s' issued. Due: %s", book.Title, iss.DueDate.Format("02 Jan 2006")))
	return iss, nil
}

// Reserve puts a 24h pickup hold on a copy for the requesting student.
// A hold is an ordinary issue with a 1-day due date.
func (svc *Service) Reserve(ctx context.Context, bookID, studentID string) (Issue, error) {
	student, err := svc.students.ResolveStudent(ctx, studentID)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return Issue{}, ErrStudentNotFound
		}
		return Issue{}, err
	}

	iss, book, err := svc.createIssue(ctx, bookID, student.ID, 1)
	if err != nil {
		return Issue{}, err
	}

	svc.notifier.NotifyUser(ctx, student.ID, "library", "Book Reserved",
		fmt.Sprintf("Book '%s' reserved. Collect from library within 24 hours.", book.Title))
	return iss, nil
}

func (svc *Service) createIssue(ctx context.Context, bookID, studentID string, dueDays int) (iss Issue, book Book, err error) {
	tx, err := svc.db.BeginTx(ctx, nil)
	if err != nil {
		return Issue{}, Book{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	book, err = svc.repo.GetBookForUpdate(ctx, bookID, tx)
	if err != nil {
		return Issue{}, Book{}, err
	}
	if book.AvailableCopies <= 0 {
		return Issue{}, Book{}, ErrNoCopiesAvailable
	}

	count, err := svc.repo.CountActiveIssues(ctx, studentID, tx)
	if err != nil {
		return Issue{}, Book{}, err
	}
	if count >= svc.cfg.IssueLimit {
		return Issue{}, Book{}, ErrIssueLimitReached
	}

	now := svc.now()
	iss = Issue{
		BookID:     book.ID,
		StudentID:  studentID,
		IssueDate:  now,
		DueDate:    now.AddDate(0, 0, dueDays),
		FineStatus: FineNone,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if iss, err = svc.repo.CreateIssue(ctx, iss, tx); err != nil {
		return Issue{}, Book{}, err
	}
	if _, err = svc.repo.AdjustAvailableCopies(ctx, book.ID, -1, tx); err != nil {
		return Issue{}, Book{}, err
	}
	err = tx.Commit()
	return iss, book, err
}

// Return closes an issue: the fine is computed and locked in, the record is
// marked returned and the copy goes back on the shelf, all in one transaction.
func (svc *Service) Return(ctx context.Context, issueID string) (rcpt ReturnReceipt, err error) {
	tx, err := svc.db.BeginTx(ctx, nil)
	if err != nil {
		return ReturnReceipt{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	iss, err := svc.repo.GetIssueForUpdate(ctx, issueID, tx)
	if err != nil {
		return ReturnReceipt{}, err
	}
	if iss.IsReturned {
		return ReturnReceipt{}, ErrAlreadyReturned
	}

	now := svc.now()
	_, fine := CalcFine(iss.DueDate, now, svc.cfg.DailyFineRate)

	iss.IsReturned = true
	iss.ReturnDate = &now
	iss.Fine = fine
	if fine > 0 {
		iss.FineStatus = FinePending
	} else {
		iss.FineStatus = FineNone
	}
	iss.UpdatedAt = now

	if _, err = svc.repo.UpdateIssue(ctx, iss, tx); err != nil {
		return ReturnReceipt{}, err
	}
	if _, err = svc.repo.AdjustAvailableCopies(ctx, iss.BookID, +1, tx); err != nil {
		return ReturnReceipt{}, err
	}
	if err = tx.Commit(); err != nil {
		return ReturnReceipt{}, err
	}

	rcpt = ReturnReceipt{Fine: fine, ReturnDate: now}
	if book, bErr := svc.repo.GetBookByID(ctx, iss.BookID); bErr == nil {
		rcpt.BookTitle = book.Title
	}
	return rcpt, nil
}

// Renew extends the due date by RenewalIncrementDays from the current due
// date. Students may only renew their own issues; desk staff may renew any.
func (svc *Service) Renew(ctx context.Context, issueID string, requester user.User) (iss Issue, err error) {
	tx, err := svc.db.BeginTx(ctx, nil)
	if err != nil {
		return Issue{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	iss, err = svc.repo.GetIssueForUpdate(ctx, issueID, tx)
	if err != nil {
		return Issue{}, err
	}
	if iss.IsReturned {
		return Issue{}, ErrAlreadyReturned
	}
	if requester.IsStudent() && !requester.IsAdmin() && iss.StudentID != requester.ID {
		return Issue{}, ErrForbidden
	}
	if iss.RenewCount >= svc.cfg.MaxRenewals {
		return Issue{}, ErrRenewalLimitReached
	}

	iss.DueDate = iss.DueDate.AddDate(0, 0, RenewalIncrementDays)
	iss.RenewCount++
	iss.UpdatedAt = svc.now()

	if iss, err = svc.repo.UpdateIssue(ctx, iss, tx); err != nil {
		return Issue{}, err
	}
	err = tx.Commit()
	return iss, err
}

// Fines

// WaiveFine forgives the fine: fine=0, status=waived. Reapplying is not an
// error; a paid fine stays paid.
func (svc *Service) WaiveFine(ctx context.Context, issueID string) (Issue, error) {
	return svc.setFineStatus(ctx, issueID, FineWaived)
}

// MarkFinePaid records collection of the fine; the amount is left untouched
// for the books. Reapplying is not an error; a waived fine stays waived.
func (svc *Service) MarkFinePaid(ctx context.Context, issueID string) (Issue, error) {
	return svc.setFineStatus(ctx, issueID, FinePaid)
}

func (svc *Service) setFineStatus(ctx context.Context, issueID string, status FineStatus) (iss Issue, err error) {
	tx, err := svc.db.BeginTx(ctx, nil)
	if err != nil {
		return Issue{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	iss, err = svc.repo.GetIssueForUpdate(ctx, issueID, tx)
	if err != nil {
		return Issue{}, err
	}

	// paid and waived are terminal for this issue's billing
	if (iss.FineStatus == FinePaid || iss.FineStatus == FineWaived) && iss.FineStatus != status {
		_ = tx.Rollback()
		return iss, nil
	}

	iss.FineStatus = status
	if status == FineWaived {
		iss.Fine = 0
	}
	iss.UpdatedAt = svc.now()

	if iss, err = svc.repo.UpdateIssue(ctx, iss, tx); err != nil {
		return Issue{}, err
	}
	err = tx.Commit()
	return iss, err
}

// Listings

// Overdue lists all unreturned issues past due as of now, most overdue
// first, each with the live fine estimate.
func (svc *Service) Overdue(ctx context.Context, now time.Time) ([]CheckedOut, error) {
	details, err := svc.repo.QueryOverdueIssues(ctx, now)
	if err != nil {
		return nil, err
	}

	out := make([]CheckedOut, 0, len(details))
	for _, d := range details {
		days, fine := CalcFine(d.DueDate, now, svc.cfg.DailyFineRate)
		out = append(out, CheckedOut{
			IssueDetail: d,
			IsOverdue:   days > 0,
			DaysOverdue: days,
			CurrentFine: fine,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].DaysOverdue > out[j].DaysOverdue })
	return out, nil
}

// MyBooks lists a student's unreturned issues with live fine annotations.
func (svc *Service) MyBooks(ctx context.Context, studentIdentifier string) ([]CheckedOut, error) {
	student, err := svc.students.ResolveStudent(ctx, studentIdentifier)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return nil, ErrStudentNotFound
		}
		return nil, err
	}

	details, err := svc.repo.QueryActiveIssuesByStudent(ctx, student.ID)
	if err != nil {
		return nil, err
	}

	now := svc.now()
	out := make([]CheckedOut, 0, len(details))
	for _, d := range details {
		days, fine := CalcFine(d.DueDate, now, svc.cfg.DailyFineRate)
		out = append(out, CheckedOut{
			IssueDetail: d,
			IsOverdue:   days > 0,
			DaysOverdue: days,
			CurrentFine: fine,
		})
	}
	return out, nil
}

// BulkRemind emails one overdue notice per overdue issue with a resolvable
// student email. Sends fan out concurrently with a per-send timeout; an
// individual failure or missing address never aborts the batch. Returns the
// number of successful sends; only the overdue listing itself can fail.
func (svc *Service) BulkRemind(ctx context.Context, now time.Time) (int, error) {
	overdue, err := svc.repo.QueryOverdueIssues(ctx, now)
	if err != nil {
		return 0, err
	}

	var (
		wg       sync.WaitGroup
		reminded int32
	)
	for _, item := range overdue {
		if item.StudentEmail == "" {
			continue
		}
		item := item
		wg.Add(1)
		go func() {
			defer wg.Done()

			_, fine := CalcFine(item.DueDate, now, svc.cfg.DailyFineRate)
			title := item.BookTitle
			if title == "" {
				title = "Book"
			}
			name := item.StudentName
			if name == "" {
				name = "Student"
			}
			msg := &core.EmailMessage{
				To:      []mail.Address{{Name: item.StudentName, Address: item.StudentEmail}},
				Subject: fmt.Sprintf("Library Overdue Notice — %s", title),
				BodyStr: fmt.Sprintf(
					"Dear %s, your book '%s' was due on %s. Current fine: %d. Please return immediately.",
					name, title, item.DueDate.Format("02 Jan 2006"), fine),
			}

			// the batch runs to completion regardless of the caller; only
			// the per-send timeout bounds each delivery
			sendCtx, cancel := context.WithTimeout(context.Background(), svc.sendTimeout)
			defer cancel()
			if err := svc.mailSvc.Send(sendCtx, msg); err != nil {
				svc.logger.Error(fmt.Sprintf("sending overdue reminder to %s", item.StudentEmail), err)
				return
			}
			atomic.AddInt32(&reminded, 1)
		}()
	}
	wg.Wait()
	return int(reminded), nil
}
