// Package seed creates the initial administrator account.
package seed

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/dmitrijs2005/accountkeeper/internal/common"
	"github.com/dmitrijs2005/accountkeeper/internal/logging"
	"github.com/dmitrijs2005/accountkeeper/internal/server/models"
	"golang.org/x/term"
)

// Test seams for the terminal.
var (
	readPassword = term.ReadPassword
	isTerminal   = term.IsTerminal
	stdinFd      = func() int { return int(os.Stdin.Fd()) }
)

const generatedPasswordBytes = 12

// AdminCreator is implemented by services.AccountService.
type AdminCreator interface {
	EnsureAdmin(ctx context.Context, email, name, password string) (*models.Account, bool, error)
}

// ResolvePassword returns the configured password if there is one, else
// prompts on an interactive terminal, else generates a random one that meets
// the password policy. generated reports the last case.
//
// The returned byte slice should be wiped by the caller when no longer needed.
func ResolvePassword(configured string, w io.Writer) (password []byte, generated bool, err error) {
	if configured != "" {
		return []byte(configured), false, nil
	}

	fd := stdinFd()
	if isTerminal(fd) {
		if _, err := fmt.Fprint(w, "Enter admin password (empty to generate): "); err != nil {
			return nil, false, err
		}
		pw, err := readPassword(fd)
		fmt.Fprintln(w)
		if err != nil {
			return nil, false, err
		}
		if len(pw) > 0 {
			return pw, false, nil
		}
	}

	random, err := common.MakeRandHexString(generatedPasswordBytes)
	if err != nil {
		return nil, false, err
	}
	// Hex digits alone lack an upper case letter and a special character.
	return []byte("Ak1#" + random), true, nil
}

// Run creates the admin account if its email is free. A generated password
// is printed to w once; it is never logged.
func Run(ctx context.Context, svc AdminCreator, logger logging.Logger, email, name string, password []byte, generated bool, w io.Writer) error {
	defer common.WipeByteArray(password)

	a, created, err := svc.EnsureAdmin(ctx, email, name, string(password))
	if err != nil {
		return fmt.Errorf("seeding admin: %w", err)
	}
	if !created {
		logger.Info(ctx, "admin account already exists, nothing to do")
		return nil
	}

	logger.Info(ctx, "admin account created", "account_id", a.ID)
	if generated {
		if _, err := fmt.Fprintf(w, "Generated password for %s: %s\n", a.Email, password); err != nil {
			return err
		}
	}
	return nil
}
