package library

import (
	"time"

	"github.com/campushq/backend/core"
)

// FineStatus tracks billing on an issue: none -> pending -> {paid | waived}.
// paid and waived are terminal.
type FineStatus string

const (
	FineNone    FineStatus = "none"
	FinePending FineStatus = "pending"
	FinePaid    FineStatus = "paid"
	FineWaived  FineStatus = "waived"
)

type Book struct {
	ID              string    `json:"id"`
	ISBN            string    `json:"isbn"`
	Title           string    `json:"title"`
	Author          string    `json:"author"`
	Publisher       string    `json:"publisher,omitempty"`
	Category        string    `json:"category,omitempty"`
	TotalCopies     int       `json:"total_copies"`
	AvailableCopies int       `json:"available_copies"`
	CoverURL        string    `json:"cover_url,omitempty"`
	AddedAt         time.Time `json:"added_at"` // UTC
}

func (b *Book) IsAvailable() bool { return b.AvailableCopies > 0 }

// Issue is one circulation cycle of a book copy against a student account.
type Issue struct {
	ID         string     `json:"id"`
	BookID     string     `json:"book_id"`
	StudentID  string     `json:"student_id"`
	IssueDate  time.Time  `json:"issue_date"` // UTC
	DueDate    time.Time  `json:"due_date"`   // UTC
	ReturnDate *time.Time `json:"return_date,omitempty"`
	IsReturned bool       `json:"is_returned"`
	Fine       int        `json:"fine"` // locked in at return time, currency units
	FineStatus FineStatus `json:"fine_status"`
	RenewCount int        `json:"renew_count"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// IssueDetail is an Issue joined with the book and student bits the
// front desk and reminder emails need.
type IssueDetail struct {
	Issue
	BookTitle     string `json:"book_title"`
	BookAuthor    string `json:"book_author,omitempty"`
	BookISBN      string `json:"book_isbn,omitempty"`
	BookCategory  string `json:"book_category,omitempty"`
	StudentName   string `json:"student_name,omitempty"`
	StudentEmail  string `json:"student_email,omitempty"`
	StudentBranch string `json:"student_branch,omitempty"`
}

// CheckedOut is an unreturned issue annotated with the live fine estimate.
// The estimate is recomputed against "now" on every listing; it is distinct
// from Issue.Fine which only gets locked in when the book comes back.
type CheckedOut struct {
	IssueDetail
	IsOverdue   bool `json:"is_overdue"`
	DaysOverdue int  `json:"days_overdue"`
	CurrentFine int  `json:"current_fine"`
}

// ReturnReceipt is handed back to the desk when a book is returned.
type ReturnReceipt struct {
	Fine       int       `json:"fine"`
	ReturnDate time.Time `json:"return_date"`
	BookTitle  string    `json:"book_title,omitempty"`
}

// BookMeta is catalog metadata resolved from an ISBN lookup.
type BookMeta struct {
	Title     string `json:"title"`
	Author    string `json:"author"`
	Publisher string `json:"publisher"`
	CoverURL  string `json:"cover_url"`
}

// NewBook contains information needed to catalog a new Book.
// Title and author may be left blank when a valid ISBN allows autofill.
type NewBook struct {
	ISBN        string `json:"isbn" validate:"required,isbn"`
	Title       string `json:"title"`
	Author      string `json:"author"`
	Publisher   string `json:"publisher"`
	Category    string `json:"category"`
	TotalCopies int    `json:"total_copies" validate:"omitempty,min=1"`
	CoverURL    string `json:"cover_url" validate:"omitempty,url"`
}

func (nb *NewBook) Validate() error {
	nb.ISBN = core.CleanString(nb.ISBN)
	nb.Title = core.CleanString(nb.Title)
	nb.Author = core.CleanString(nb.Author)
	nb.Publisher = core.CleanString(nb.Publisher)
	nb.Category = core.CleanString(nb.Category)
	return core.Validate.Struct(nb)
}

// UpdateBook defines what information may be provided to modify a cataloged Book.
// A TotalCopies change shifts AvailableCopies by the same delta (never below 0).
type UpdateBook struct {
	Title       string `json:"title"`
	Author      string `json:"author"`
	Publisher   string `json:"publisher"`
	Category    string `json:"category"`
	TotalCopies *int   `json:"total_copies" validate:"omitempty,min=0"`
	CoverURL    string `json:"cover_url" validate:"omitempty,url"`
}

func (ub *UpdateBook) Validate() error {
	ub.Title = core.CleanString(ub.Title)
	ub.Author = core.CleanString(ub.Author)
	ub.Publisher = core.CleanString(ub.Publisher)
	ub.Category = core.CleanString(ub.Category)
	return core.Validate.Struct(ub)
}

// IssueRequest is the front-desk form for issuing a copy to a student.
type IssueRequest struct {
	BookID    string `json:"book_id" validate:"required"`
	StudentID string `json:"student_id" validate:"required"`
	DueDays   int    `json:"due_days" validate:"omitempty,min=1,max=90"`
}

func (ir *IssueRequest) Validate() error {
	ir.BookID = core.CleanString(ir.BookID)
	ir.StudentID = core.CleanString(ir.StudentID)
	return core.Validate.Struct(ir)
}

type BookQueryFilter struct {
	Search   string `query:"search"` // matches title, author or ISBN
	Category string `query:"category"`
}

func (qf *BookQueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
	qf.Category = core.CleanString(qf.Category)
}

// BookInfo is a catalog listing entry with the availability flag precomputed.
type BookInfo struct {
	Book
	IsAvailable bool `json:"is_available"`
}
