package main

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/kashur/backend/core"
	"github.com/kashur/backend/core/user"
)

// addUser updates or creates an active user.User
func (cli *commandLine) addUser(uname, email, pwd string, isAdmin bool) error {
	ctx := context.Background()
	uname = core.CleanString(uname, true /* lower */)
	email = core.CleanString(email, true /* lower */)
	if err := cli.validate.Var(email, "required,email"); err != nil {
		return errors.Errorf("invalid email %q", email)
	}

	now := time.Now().UTC()
	usr, err := cli.usrRepo.GetUser(ctx, user.GetFilter{UsernameOrEmail: []string{uname, email}})
	if err != nil {
		if errors.Cause(err) != user.ErrNotFound {
			return err
		}
		usr = user.User{
			Name:      uname,
			Username:  uname,
			Email:     email,
			Roles:     user.LearnerRoles,
			CreatedAt: now,
		}
	}
	if isAdmin {
		usr.SetAdmin(true)
	}
	usr.IsActive = true

	if err = user.ValidatePassword(pwd, usr); err != nil {
		return err
	}
	if err = usr.SetPassword(pwd); err != nil {
		return err
	}
	usr.UpdatedAt = now
	if usr, err = cli.usrRepo.UpdateOrCreateUser(ctx, usr); err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "user %q saved\n", usr.Username)
	return nil
}
