package config

import (
	"errors"
	"fmt"

	"github.com/ilyakaznacheev/cleanenv"
)

// ErrConfiguration marks errors the operator has to fix (missing
// credentials, missing customer number). Never retryable.
var ErrConfiguration = errors.New("configuration error")

// Credentials are the Hetzner Accounts login details. They are resolved
// once and not modified afterwards.
type Credentials struct {
	Email          string `env:"HETZNER_ACCOUNT_EMAIL"`
	Password       string `env:"HETZNER_ACCOUNT_PASSWORD"`
	TOTPSecret     string `env:"HETZNER_TOTP_SECRET"`
	CustomerNumber string `env:"HETZNER_CUSTOMER_NUMBER"`
}

// Environment is everything read from the process environment.
type Environment struct {
	Credentials
	// Headless is a string so an unset variable can be told apart from "false".
	Headless string `env:"HETZNER_HEADLESS"`
}

// ReadEnvironment reads the HETZNER_* variables.
func ReadEnvironment() (Environment, error) {
	var env Environment
	if err := cleanenv.ReadEnv(&env); err != nil {
		return Environment{}, fmt.Errorf("reading environment: %w", err)
	}
	return env, nil
}

// ResolveCredentials merges explicit overrides over the environment. A
// non-empty override always wins.
func ResolveCredentials(overrides Credentials) (Credentials, error) {
	env, err := ReadEnvironment()
	if err != nil {
		return Credentials{}, err
	}
	return MergeCredentials(overrides, env.Credentials), nil
}

// MergeCredentials returns override fields where set and env fields otherwise.
func MergeCredentials(override, env Credentials) Credentials {
	return Credentials{
		Email:          firstNonEmpty(override.Email, env.Email),
		Password:       firstNonEmpty(override.Password, env.Password),
		TOTPSecret:     firstNonEmpty(override.TOTPSecret, env.TOTPSecret),
		CustomerNumber: firstNonEmpty(override.CustomerNumber, env.CustomerNumber),
	}
}

// Validate checks the fields needed to start a session. It does not check
// whether the portal accepts them.
func (c Credentials) Validate() error {
	if c.Email == "" || c.Password == "" {
		return fmt.Errorf("%w: HETZNER_ACCOUNT_EMAIL and HETZNER_ACCOUNT_PASSWORD must be set", ErrConfiguration)
	}
	return nil
}

// HasTOTP reports whether a TOTP secret was supplied.
func (c Credentials) HasTOTP() bool {
	return c.TOTPSecret != ""
}

// ApplyHeadless lets HETZNER_HEADLESS=false turn off headless mode.
func (c *Config) ApplyHeadless(value string) {
	switch value {
	case "false", "False", "FALSE", "0", "no":
		c.Browser.Headless = false
	case "true", "True", "TRUE", "1", "yes":
		c.Browser.Headless = true
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
