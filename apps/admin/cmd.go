package main

import (
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
	"syscall"

	"github.com/go-playground/validator/v10"
	"golang.org/x/term"

	"github.com/trezcool/wazazi/core/school"
	"github.com/trezcool/wazazi/core/user"
)

var (
	readPasswordFunc = term.ReadPassword // mockable

	errHelp  = errors.New("help provided")
	errNoSQL = errors.New("migrations need the postgres database driver")
)

type commandLine struct {
	db         *sql.DB // nil with the in-memory store
	usrSvc     *user.Service
	usrRepo    user.Repository
	schoolRepo school.Repository
	validate   *validator.Validate
	out        io.Writer
}

func (cli *commandLine) printUsage() {
	fmt.Fprintln(cli.out, "Usage:")
	fmt.Fprintln(cli.out, "  migrate COMMAND [ARGS]                           - run a goose command (up, down, status...)")
	fmt.Fprintln(cli.out, "  resetpassword -username EMAIL                    - reset user's password")
	fmt.Fprintln(cli.out, "  adduser -email EMAIL -name NAME [-role ROLE]     - create a parent or an admin")
	fmt.Fprintln(cli.out, "  link -email EMAIL -students ID[,ID...]           - link students to a parent")
	fmt.Fprintln(cli.out, "  parents                                          - list parents and their students")
	fmt.Fprintln(cli.out, "  seed [-parents N] [-students N] [-items N]       - fill the store with fake school records")
}

// promptPassword reads a password from the terminal without echoing it.
func (cli *commandLine) promptPassword(fs *flag.FlagSet) (string, error) {
	fmt.Fprint(cli.out, "Enter password:")
	pwd, err := readPasswordFunc(int(syscall.Stdin))
	fmt.Fprintln(cli.out)
	if err != nil {
		return "", err
	}
	if len(pwd) == 0 {
		fs.Usage()
		return "", errHelp
	}
	return string(pwd), nil
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	resetPasswordCmd := flag.NewFlagSet("resetpassword", flag.ContinueOnError)
	resetPasswordUname := resetPasswordCmd.String("username", "", "The user's email. The password will be prompted next.")

	addUserCmd := flag.NewFlagSet("adduser", flag.ContinueOnError)
	addUserEmail := addUserCmd.String("email", "", "The user's email. The password will be prompted next.")
	addUserName := addUserCmd.String("name", "", "The user's full name.")
	addUserRole := addUserCmd.String("role", user.RoleParent, "parent|admin")

	linkCmd := flag.NewFlagSet("link", flag.ContinueOnError)
	linkEmail := linkCmd.String("email", "", "The parent's email.")
	linkStudents := linkCmd.String("students", "", "Comma separated student ids; replaces the current ones.")

	seedCmd := flag.NewFlagSet("seed", flag.ContinueOnError)
	seedParents := seedCmd.Int("parents", 3, "Number of parents.")
	seedStudents := seedCmd.Int("students", 12, "Number of students, spread over the parents.")
	seedItems := seedCmd.Int("items", 5, "Comments per student, and notifications per class.")

	for _, fs := range []*flag.FlagSet{resetPasswordCmd, addUserCmd, linkCmd, seedCmd} {
		fs.SetOutput(cli.out)
	}

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(args[2:])

	case "resetpassword":
		if err := resetPasswordCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *resetPasswordUname == "" {
			resetPasswordCmd.Usage()
			return errHelp
		}
		pwd, err := cli.promptPassword(resetPasswordCmd)
		if err != nil {
			return err
		}
		return cli.resetPassword(*resetPasswordUname, pwd)

	case "adduser":
		if err := addUserCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *addUserEmail == "" || *addUserName == "" {
			addUserCmd.Usage()
			return errHelp
		}
		pwd, err := cli.promptPassword(addUserCmd)
		if err != nil {
			return err
		}
		return cli.addUser(*addUserName, *addUserEmail, pwd, *addUserRole)

	case "link":
		if err := linkCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *linkEmail == "" || *linkStudents == "" {
			linkCmd.Usage()
			return errHelp
		}
		return cli.link(*linkEmail, strings.Split(*linkStudents, ","))

	case "parents":
		return cli.listParents()

	case "seed":
		if err := seedCmd.Parse(args[2:]); err != nil {
			return err
		}
		return cli.seed(*seedParents, *seedStudents, *seedItems)

	default:
		cli.printUsage()
		return errHelp
	}
}
