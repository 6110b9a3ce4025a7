package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/NguetchuissiBrunel/xccm-gateway/core"
	"github.com/NguetchuissiBrunel/xccm-gateway/core/session"
)

// issueToken prints a signed auth token for an existing user; handy for
// seeding an authToken cookie by hand.
func (cli *commandLine) issueToken(uname string) error {
	usr, err := cli.usrRepo.GetUserByUsernameOrEmail(core.CleanString(uname, true /* lower */))
	if err != nil {
		return err
	}
	claims := session.GetClaims(session.RecordFromUser(usr), cli.conf)
	token, err := session.GenerateToken(claims, cli.conf)
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}

// inspectToken decodes a token and prints its claims.
func (cli *commandLine) inspectToken(tokenStr string, verify bool) error {
	claims, err := session.DecodeToken(tokenStr, cli.conf, verify)
	if err != nil {
		return err
	}
	out, err := json.MarshalIndent(claims, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	fmt.Printf("expires: %s\n", time.Unix(claims.ExpiresAt, 0).UTC())
	return nil
}
