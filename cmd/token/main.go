// Command token issues access tokens signed with JWT_SECRET for operators
// and load tests.
//
//	token --user alice
//	token -u root -r ADMIN --ttl 1h
package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/iliyamo/event-seat-reservation/internal/middleware"
	"github.com/iliyamo/event-seat-reservation/internal/utils"
)

type options struct {
	user string
	role string
	ttl  time.Duration
}

func main() {
	_ = godotenv.Load()
	if err := run(os.Args[1:], os.Getenv("JWT_SECRET"), os.Stdout, os.Stderr); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func parseFlags(args []string) (options, error) {
	var opts options
	flagSet := pflag.NewFlagSet("token", pflag.ContinueOnError)
	flagSet.StringVarP(&opts.user, "user", "u", "", "subject of the token")
	flagSet.StringVarP(&opts.role, "role", "r", middleware.RoleUser, "USER or ADMIN")
	flagSet.DurationVarP(&opts.ttl, "ttl", "t", 15*time.Minute, "token lifetime")
	if err := flagSet.Parse(args); err != nil {
		return opts, err
	}
	if opts.user == "" {
		return opts, errors.New("--user is required")
	}
	switch opts.role {
	case middleware.RoleUser, middleware.RoleAdmin:
	default:
		return opts, fmt.Errorf("unknown role %q", opts.role)
	}
	if opts.ttl <= 0 {
		return opts, errors.New("--ttl must be positive")
	}
	return opts, nil
}

func run(args []string, secret string, stdout, stderr io.Writer) error {
	opts, err := parseFlags(args)
	if err != nil {
		return err
	}
	if secret == "" {
		return errors.New("JWT_SECRET must be set")
	}
	tok, err := utils.NewAccessToken(secret, opts.user, opts.role, opts.ttl)
	if err != nil {
		return err
	}
	fmt.Fprintln(stdout, tok.Token)
	fmt.Fprintf(stderr, "expires %s\n", tok.Exp.Format(time.RFC3339))
	return nil
}
