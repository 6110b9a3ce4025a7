package main

import (
	"time"

	"github.com/google/uuid"

	"github.com/NguetchuissiBrunel/xccm-gateway/core"
	"github.com/NguetchuissiBrunel/xccm-gateway/core/user"
)

// addUser updates or creates a user.User
func (cli *commandLine) addUser(uname, email, pwd, role string) error {
	uname = core.CleanString(uname, true /* lower */)
	email = core.CleanString(email, true /* lower */)
	role = user.NormalizeRole(role)

	usr, err := cli.usrRepo.GetUserByUsernameOrEmail(uname)
	if err == user.ErrNotFound {
		usr, err = cli.usrRepo.GetUserByUsernameOrEmail(email)
	}
	if err != nil && err != user.ErrNotFound {
		return err
	}

	now := time.Now().UTC()
	active := true
	if usr.ID == "" {
		usr = user.User{
			ID:        uuid.New().String(),
			Username:  uname,
			Email:     email,
			Role:      role,
			IsActive:  &active,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := usr.SetPassword(pwd); err != nil {
			return err
		}
		_, err = cli.usrRepo.CreateUser(usr)
		return err
	}

	usr.Role = role
	usr.UpdatedAt = now
	if err := usr.SetPassword(pwd); err != nil {
		return err
	}
	_, err = cli.usrRepo.UpdateUser(usr, &active)
	return err
}
