// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/hashicorp/go-hclog"
	"github.com/haugen/mgtauth/oidc"
	"github.com/haugen/mgtauth/provider"
	"github.com/joho/godotenv"
)

// config is read from the environment, after an optional .env file is
// loaded.
type config struct {
	Issuer                string        `env:"MGTAUTH_ISSUER,required"`
	ClientID              string        `env:"MGTAUTH_CLIENT_ID,required"`
	ClientSecret          string        `env:"MGTAUTH_CLIENT_SECRET"`
	RedirectURL           string        `env:"MGTAUTH_REDIRECT_URL" envDefault:"http://localhost:8080/callback"`
	PostLogoutRedirectURL string        `env:"MGTAUTH_POST_LOGOUT_REDIRECT_URL"`
	SigningAlgs           []string      `env:"MGTAUTH_SIGNING_ALGS" envDefault:"RS256" envSeparator:","`
	Scopes                []string      `env:"MGTAUTH_SCOPES" envDefault:"user.read" envSeparator:" "`
	LoginType             string        `env:"MGTAUTH_LOGIN_TYPE" envDefault:"redirect"`
	LoginHint             string        `env:"MGTAUTH_LOGIN_HINT"`
	ProviderCAFile        string        `env:"MGTAUTH_PROVIDER_CA_FILE"`
	PopupTimeout          time.Duration `env:"MGTAUTH_POPUP_TIMEOUT" envDefault:"2m"`
	Addr                  string        `env:"MGTAUTH_ADDR" envDefault:"localhost:8080"`
	RedisURL              string        `env:"MGTAUTH_REDIS_URL"`
	SessionTTL            time.Duration `env:"MGTAUTH_SESSION_TTL" envDefault:"8h"`
	SecureCookie          bool          `env:"MGTAUTH_SECURE_COOKIE"`
	LogLevel              string        `env:"MGTAUTH_LOG_LEVEL" envDefault:"info"`
	LogJSON               bool          `env:"MGTAUTH_LOG_JSON"`
}

// loadConfig loads the .env file, which must exist when it's named, and
// parses the config from environ. A nil environ uses the process
// environment.
func loadConfig(envFile string, environ map[string]string) (*config, error) {
	const op = "loadConfig"
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return nil, fmt.Errorf("%s: unable to load %s: %w", op, envFile, err)
		}
	} else {
		// the default .env is optional
		_ = godotenv.Load()
	}
	var c config
	if err := env.ParseWithOptions(&c, env.Options{Environment: environ}); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if _, err := c.loginType(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &c, nil
}

func (c *config) loginType() (provider.LoginType, error) {
	return provider.ParseLoginType(c.LoginType)
}

// oidcConfig returns the client config for the redirect URL.
func (c *config) oidcConfig(redirectURL string) (*oidc.Config, error) {
	const op = "config.oidcConfig"
	algs := make([]oidc.Alg, 0, len(c.SigningAlgs))
	for _, a := range c.SigningAlgs {
		algs = append(algs, oidc.Alg(a))
	}
	opts := []oidc.Option{
		oidc.WithPopupTimeout(c.PopupTimeout),
	}
	if c.PostLogoutRedirectURL != "" {
		opts = append(opts, oidc.WithPostLogoutRedirectURL(c.PostLogoutRedirectURL))
	}
	if c.ProviderCAFile != "" {
		ca, err := os.ReadFile(c.ProviderCAFile)
		if err != nil {
			return nil, fmt.Errorf("%s: unable to read provider CA: %w", op, err)
		}
		opts = append(opts, oidc.WithProviderCA(string(ca)))
	}
	oc, err := oidc.NewConfig(c.Issuer, c.ClientID, oidc.ClientSecret(c.ClientSecret), algs, redirectURL, opts...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return oc, nil
}

func (c *config) providerOptions(loginType provider.LoginType, logger hclog.Logger) []provider.Option {
	return []provider.Option{
		provider.WithLoginType(loginType),
		provider.WithScopes(c.Scopes...),
		provider.WithLoginHint(c.LoginHint),
		provider.WithLogger(logger),
	}
}

func (c *config) logger(w io.Writer) hclog.Logger {
	return hclog.New(&hclog.LoggerOptions{
		Name:       "mgtauth",
		Level:      hclog.LevelFromString(c.LogLevel),
		Output:     w,
		JSONFormat: c.LogJSON,
	})
}
