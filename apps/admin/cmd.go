package main

import (
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"syscall"

	"golang.org/x/term"

	"github.com/campushq/backend/core/library"
	"github.com/campushq/backend/core/user"
)

var (
	readPasswordFunc = term.ReadPassword // mockable

	errHelp = errors.New("help provided")
)

type commandLine struct {
	db      *sql.DB
	usrRepo user.Repository
	libSvc  *library.Service
}

func (cli *commandLine) printUsage() {
	fmt.Println("Usage:")
	fmt.Println("  migrate [up|down|status|version] - run database migrations")
	fmt.Println("  adduser -username USERNAME -email EMAIL [-admin] - add or update a user; the password is prompted")
	fmt.Println("  resetpassword -username USERNAME|EMAIL - reset user's password")
	fmt.Println("  addbook -isbn ISBN [-title TITLE] [-author AUTHOR] [-copies N] - catalog a book")
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	addUserCmd := flag.NewFlagSet("adduser", flag.ExitOnError)
	addUserUname := addUserCmd.String("username", "", "The user's username.")
	addUserEmail := addUserCmd.String("email", "", "The user's email.")
	addUserAdmin := addUserCmd.Bool("admin", false, "Grant all roles.")

	resetPasswordCmd := flag.NewFlagSet("resetpassword", flag.ExitOnError)
	resetPasswordUname := resetPasswordCmd.String("username", "", "The user's username or email. The password will be prompted next.")

	addBookCmd := flag.NewFlagSet("addbook", flag.ExitOnError)
	addBookISBN := addBookCmd.String("isbn", "", "The book's ISBN. Title/author are auto-filled when possible.")
	addBookTitle := addBookCmd.String("title", "", "The book's title.")
	addBookAuthor := addBookCmd.String("author", "", "The book's author.")
	addBookCopies := addBookCmd.Int("copies", 1, "Number of copies.")

	switch args[1] {
	case "migrate":
		command := "up"
		if len(args) > 2 {
			command = args[2]
		}
		var rest []string
		if len(args) > 3 {
			rest = args[3:]
		}
		return cli.migrate(command, rest...)
	case "adduser":
		if err := addUserCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *addUserUname == "" && *addUserEmail == "" {
			addUserCmd.Usage()
			return errHelp
		}
		pwd, err := cli.promptPassword()
		if err != nil {
			return err
		}
		return cli.addUser(*addUserUname, *addUserEmail, pwd, *addUserAdmin)
	case "resetpassword":
		if err := resetPasswordCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *resetPasswordUname == "" {
			resetPasswordCmd.Usage()
			return errHelp
		}
		pwd, err := cli.promptPassword()
		if err != nil {
			return err
		}
		return cli.resetPassword(*resetPasswordUname, pwd)
	case "addbook":
		if err := addBookCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *addBookISBN == "" {
			addBookCmd.Usage()
			return errHelp
		}
		return cli.addBook(*addBookISBN, *addBookTitle, *addBookAuthor, *addBookCopies)
	default:
		cli.printUsage()
		return errHelp
	}
}

func (cli *commandLine) promptPassword() (string, error) {
	fmt.Print("Enter password:")
	pwd, err := readPasswordFunc(syscall.Stdin)
	fmt.Println()
	if err != nil {
		return "", err
	}
	if len(pwd) == 0 {
		return "", errHelp
	}
	return string(pwd), nil
}
