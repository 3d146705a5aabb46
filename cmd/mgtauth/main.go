// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

// mgtauth signs users in to an OIDC provider and acquires access tokens for
// them, either as a web server (serve) or from the command line (login,
// token and logout).
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
)

const usage = `usage: mgtauth [-env-file FILE] COMMAND [ARGS]

Commands:
  serve            serve /login, /callback, /token, /state and /logout
  login            sign in with the browser
  token [SCOPE...] print an access token for the scopes
  logout           sign out

The configuration is read from MGTAUTH_* environment variables and an
optional .env file.
`

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("mgtauth", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() { fmt.Fprint(stderr, usage) }
	envFile := fs.String("env-file", "", "load the environment from `FILE`")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	cmd, cmdArgs := fs.Arg(0), fs.Args()
	if len(cmdArgs) > 0 {
		cmdArgs = cmdArgs[1:]
	}
	switch cmd {
	case "serve", "login", "token", "logout":
	default:
		fs.Usage()
		return 2
	}

	cfg, err := loadConfig(*envFile, nil)
	if err != nil {
		fmt.Fprintf(stderr, "%s\n", err)
		return 1
	}
	logger := cfg.logger(stderr)

	// handle ctrl-c while waiting for the browser or serving
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	switch cmd {
	case "serve":
		err = serve(ctx, cfg, logger)
	case "login":
		err = cliLogin(ctx, cfg, logger, stdout)
	case "token":
		err = cliToken(ctx, cfg, logger, stdout, cmdArgs)
	case "logout":
		err = cliLogout(ctx, cfg, logger, stdout)
	}
	if err != nil {
		logger.Error("command failed", "command", cmd, "error", err)
		return 1
	}
	return 0
}
