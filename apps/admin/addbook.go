package main

import (
	"context"
	"fmt"

	"github.com/campushq/backend/core/library"
)

// addBook catalogs a book; title/author are auto-filled from the ISBN when
// not provided.
func (cli *commandLine) addBook(isbn, title, author string, copies int) error {
	book, err := cli.libSvc.AddBook(context.Background(), library.NewBook{
		ISBN:        isbn,
		Title:       title,
		Author:      author,
		TotalCopies: copies,
	})
	if err != nil {
		return err
	}
	fmt.Printf("cataloged %q by %s (%d copies)\n", book.Title, book.Author, book.TotalCopies)
	return nil
}
