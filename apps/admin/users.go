package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"github.com/trezcool/wazazi/core"
	"github.com/trezcool/wazazi/core/readtrack"
	"github.com/trezcool/wazazi/core/school"
	"github.com/trezcool/wazazi/core/user"
)

// addUser creates a user after applying the password policy.
func (cli *commandLine) addUser(name, email, pwd, role string) error {
	ctx := context.Background()
	nu := user.NewUser{
		Name:            name,
		Email:           email,
		Password:        pwd,
		PasswordConfirm: pwd,
		Role:            role,
	}
	if err := nu.Validate(ctx, cli.validate, cli.usrSvc); err != nil {
		return err
	}
	usr, err := cli.usrSvc.Create(ctx, nu)
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "created %s %s (%s)\n", usr.Role, usr.Email, usr.ID)
	return nil
}

// link replaces the students of the parent with the given email.
func (cli *commandLine) link(email string, studentIDs []string) error {
	ctx := context.Background()
	ls := user.LinkStudents{StudentIDs: studentIDs}
	if err := ls.Validate(cli.validate); err != nil {
		return err
	}
	usr, err := cli.usrSvc.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	if err = cli.checkStudents(ctx, ls.StudentIDs); err != nil {
		return err
	}
	usr, err = cli.usrSvc.LinkStudents(ctx, usr.ID, ls.StudentIDs)
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "%s is linked to %v\n", usr.Email, usr.StudentIDs)
	return nil
}

// checkStudents fails with school.ErrStudentNotFound unless every id names a student.
func (cli *commandLine) checkStudents(ctx context.Context, ids []string) error {
	found := make(map[string]bool, len(ids))
	for _, chunk := range readtrack.Chunk(ids, core.MaxDisjunctionValues) {
		students, err := cli.schoolRepo.StudentsByIDs(ctx, chunk)
		if err != nil {
			return err
		}
		for _, st := range students {
			found[st.ID] = true
		}
	}
	var missing []string
	for _, id := range ids {
		if !found[id] {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		return errors.Wrap(school.ErrStudentNotFound, strings.Join(missing, ","))
	}
	return nil
}

// listParents prints every parent account with its linked students.
func (cli *commandLine) listParents() error {
	parents, err := cli.usrSvc.QueryParents(context.Background())
	if err != nil {
		return err
	}
	for _, p := range parents {
		status := "active"
		if !p.IsActive {
			status = "inactive"
		}
		fmt.Fprintf(cli.out, "%s\t%s\t%s\t%s\n", p.Email, p.Name, status, strings.Join(p.StudentIDs, ","))
	}
	fmt.Fprintf(cli.out, "%d parent(s)\n", len(parents))
	return nil
}
