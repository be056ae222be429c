package local

import (
	"time"

	"golang.org/x/crypto/bcrypt"
)

const (
	// PurposeID marks credential tokens attached to outbound calls
	PurposeID = "id"
	// PurposePasswordReset marks tokens handed to the ResetNotifier
	PurposePasswordReset = "password_reset"
)

// Config holds the local provider settings.
type Config struct {
	// SigningKey signs credential and reset tokens. Required.
	SigningKey []byte

	// Issuer is set as the iss claim (optional).
	Issuer string

	// TokenTTL is the lifetime of credential tokens.
	// Default: 1 hour.
	TokenTTL time.Duration

	// ResetTokenTTL is the lifetime of password reset tokens.
	// Default: 1 hour.
	ResetTokenTTL time.Duration

	// BcryptCost is the password hashing cost.
	// Default: bcrypt.DefaultCost.
	BcryptCost int

	// MinPasswordLength shorter passwords are rejected as weak.
	// Default: 6.
	MinPasswordLength int

	// MaxLoginAttempts failed sign ins before the account is rate limited.
	// Default: 5.
	MaxLoginAttempts int

	// CoolDown is how long a rate limited account has to wait.
	// Default: 15 minutes.
	CoolDown time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig(signingKey []byte) Config {
	return Config{
		SigningKey:        signingKey,
		TokenTTL:          time.Hour,
		ResetTokenTTL:     time.Hour,
		BcryptCost:        bcrypt.DefaultCost,
		MinPasswordLength: 6,
		MaxLoginAttempts:  5,
		CoolDown:          15 * time.Minute,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig(c.SigningKey)
	if c.TokenTTL <= 0 {
		c.TokenTTL = def.TokenTTL
	}
	if c.ResetTokenTTL <= 0 {
		c.ResetTokenTTL = def.ResetTokenTTL
	}
	if c.BcryptCost < bcrypt.MinCost || c.BcryptCost > bcrypt.MaxCost {
		c.BcryptCost = def.BcryptCost
	}
	if c.MinPasswordLength <= 0 {
		c.MinPasswordLength = def.MinPasswordLength
	}
	if c.MaxLoginAttempts <= 0 {
		c.MaxLoginAttempts = def.MaxLoginAttempts
	}
	if c.CoolDown <= 0 {
		c.CoolDown = def.CoolDown
	}
	return c
}
