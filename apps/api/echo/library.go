package echoapi

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/campushq/backend/core/library"
	"github.com/campushq/backend/core/user"
)

type libraryApi struct {
	svc     *library.Service
	userSvc *user.Service
}

func registerLibraryAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc *library.Service, userSvc *user.Service) {
	api := libraryApi{svc: svc, userSvc: userSvc}

	lg := g.Group("/library", jwt)

	// catalog
	lg.GET("/books", api.searchBooks)
	lg.POST("/books", api.addBook, librarianMiddleware())
	lg.GET("/books/lookup/:isbn", api.lookupISBN, librarianMiddleware())
	lg.GET("/books/:id", api.retrieveBook)
	lg.PUT("/books/:id", api.updateBook, librarianMiddleware())
	lg.DELETE("/books/:id", api.deleteBook, librarianMiddleware())
	lg.POST("/books/:id/reserve", api.reserveBook)

	// circulation desk
	lg.POST("/issues", api.issueBook, librarianMiddleware())
	lg.GET("/issues/overdue", api.overdue, librarianMiddleware())
	lg.POST("/issues/overdue/remind", api.remindOverdue, librarianMiddleware())
	lg.POST("/issues/:id/return", api.returnBook, librarianMiddleware())
	lg.POST("/issues/:id/renew", api.renewIssue)
	lg.POST("/issues/:id/fine/waive", api.waiveFine, librarianMiddleware())
	lg.POST("/issues/:id/fine/paid", api.markFinePaid, librarianMiddleware())

	// student shelf
	lg.GET("/my-books", api.myBooks)
	lg.GET("/students/:id/books", api.studentBooks, librarianMiddleware())
}

// Catalog handlers

func (api *libraryApi) searchBooks(ctx echo.Context) error {
	var filter library.BookQueryFilter
	if err := ctx.Bind(&filter); err != nil {
		return ctx.JSON(http.StatusOK, []library.BookInfo{})
	}

	books, err := api.svc.SearchBooks(ctx.Request().Context(), filter)
	if err != nil {
		return errors.Wrap(err, "searching books")
	}
	return ctx.JSON(http.StatusOK, books)
}

func (api *libraryApi) addBook(ctx echo.Context) error {
	var data library.NewBook
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewBook")
	}

	book, err := api.svc.AddBook(ctx.Request().Context(), data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, book)
}

func (api *libraryApi) lookupISBN(ctx echo.Context) error {
	meta, err := api.svc.LookupISBN(ctx.Request().Context(), ctx.Param("isbn"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, meta)
}

func (api *libraryApi) retrieveBook(ctx echo.Context) error {
	book, err := api.svc.GetBook(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, library.BookInfo{Book: book, IsAvailable: book.IsAvailable()})
}

func (api *libraryApi) updateBook(ctx echo.Context) error {
	var data library.UpdateBook
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateBook")
	}

	book, err := api.svc.UpdateBook(ctx.Request().Context(), ctx.Param("id"), data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, book)
}

func (api *libraryApi) deleteBook(ctx echo.Context) error {
	if err := api.svc.DeleteBook(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return err
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *libraryApi) reserveBook(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}
	if !claims.IsStudent {
		return errHttpForbidden
	}

	iss, err := api.svc.Reserve(ctx.Request().Context(), ctx.Param("id"), claims.Subject)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, iss)
}

// Circulation handlers

func (api *libraryApi) issueBook(ctx echo.Context) error {
	var data library.IssueRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to IssueRequest")
	}
	if err := data.Validate(); err != nil {
		return err
	}

	iss, err := api.svc.Issue(ctx.Request().Context(), data.BookID, data.StudentID, data.DueDays)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, iss)
}

func (api *libraryApi) returnBook(ctx echo.Context) error {
	rcpt, err := api.svc.Return(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, rcpt)
}

func (api *libraryApi) renewIssue(ctx echo.Context) error {
	requester, err := getContextUser(ctx, api.userSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	iss, err := api.svc.Renew(ctx.Request().Context(), ctx.Param("id"), requester)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, iss)
}

func (api *libraryApi) waiveFine(ctx echo.Context) error {
	iss, err := api.svc.WaiveFine(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, iss)
}

func (api *libraryApi) markFinePaid(ctx echo.Context) error {
	iss, err := api.svc.MarkFinePaid(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, iss)
}

func (api *libraryApi) overdue(ctx echo.Context) error {
	items, err := api.svc.Overdue(ctx.Request().Context(), time.Now().UTC())
	if err != nil {
		return errors.Wrap(err, "listing overdue issues")
	}
	if items == nil {
		items = []library.CheckedOut{}
	}
	return ctx.JSON(http.StatusOK, items)
}

func (api *libraryApi) remindOverdue(ctx echo.Context) error {
	reminded, err := api.svc.BulkRemind(ctx.Request().Context(), time.Now().UTC())
	if err != nil {
		return errors.Wrap(err, "sending overdue reminders")
	}
	return ctx.JSON(http.StatusOK, RemindResponse{Reminded: reminded})
}

// Student shelf handlers

func (api *libraryApi) myBooks(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}
	if !claims.IsStudent {
		return errHttpForbidden
	}
	return api.listStudentBooks(ctx, claims.Subject)
}

func (api *libraryApi) studentBooks(ctx echo.Context) error {
	return api.listStudentBooks(ctx, ctx.Param("id"))
}

func (api *libraryApi) listStudentBooks(ctx echo.Context, studentID string) error {
	items, err := api.svc.MyBooks(ctx.Request().Context(), studentID)
	if err != nil {
		return err
	}
	if items == nil {
		items = []library.CheckedOut{}
	}
	return ctx.JSON(http.StatusOK, items)
}
