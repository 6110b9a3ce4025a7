package main

import (
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"syscall"

	"golang.org/x/term"

	"github.com/NguetchuissiBrunel/xccm-gateway/core"
	"github.com/NguetchuissiBrunel/xccm-gateway/core/user"
)

var (
	readPasswordFunc = term.ReadPassword // mockable

	errHelp = errors.New("help provided")
)

type commandLine struct {
	conf    *core.Config
	db      *sql.DB
	usrRepo user.Repository
}

func (cli *commandLine) printUsage() {
	fmt.Println("Usage:")
	fmt.Println("  adduser -username USERNAME -email EMAIL [-role ROLE] - create or update a user; the password is prompted next")
	fmt.Println("  issuetoken -username USERNAME|EMAIL - print a signed auth token for the user")
	fmt.Println("  inspecttoken -token TOKEN [-noverify] - decode an auth token and print its claims")
	fmt.Println("  migrate COMMAND [ARGS] - run database migrations (up, down, status, ...)")
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	addUserCmd := flag.NewFlagSet("adduser", flag.ExitOnError)
	addUserUname := addUserCmd.String("username", "", "The user's username.")
	addUserEmail := addUserCmd.String("email", "", "The user's email.")
	addUserRole := addUserCmd.String("role", user.RoleStudent, "The user's role: student, teacher or admin.")

	issueTokenCmd := flag.NewFlagSet("issuetoken", flag.ExitOnError)
	issueTokenUname := issueTokenCmd.String("username", "", "The user's username or email.")

	inspectTokenCmd := flag.NewFlagSet("inspecttoken", flag.ExitOnError)
	inspectTokenStr := inspectTokenCmd.String("token", "", "The compact token string.")
	inspectTokenNoVerify := inspectTokenCmd.Bool("noverify", false, "Decode the payload without checking the signature.")

	switch args[1] {
	case "adduser":
		if err := addUserCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *addUserUname == "" || *addUserEmail == "" {
			addUserCmd.Usage()
			return errHelp
		}
		fmt.Print("Enter password:")
		pwd, err := readPasswordFunc(syscall.Stdin)
		fmt.Println()
		if err != nil {
			return err
		}
		if len(pwd) == 0 {
			addUserCmd.Usage()
			return errHelp
		}
		return cli.addUser(*addUserUname, *addUserEmail, string(pwd), *addUserRole)
	case "issuetoken":
		if err := issueTokenCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *issueTokenUname == "" {
			issueTokenCmd.Usage()
			return errHelp
		}
		return cli.issueToken(*issueTokenUname)
	case "inspecttoken":
		if err := inspectTokenCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *inspectTokenStr == "" {
			inspectTokenCmd.Usage()
			return errHelp
		}
		return cli.inspectToken(*inspectTokenStr, !*inspectTokenNoVerify)
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(args[2:])
	default:
		cli.printUsage()
		return errHelp
	}
}
