package auth

import (
	"context"
	"fmt"
	"strings"

	"github.com/KretovDmitry/nairabulk-orders/internal/config"
	"github.com/KretovDmitry/nairabulk-orders/internal/models/admin"
	"github.com/KretovDmitry/nairabulk-orders/internal/models/errs"
	"golang.org/x/crypto/bcrypt"
)

// Repository looks up admin accounts. Swap it to move accounts out of
// the configuration file.
type Repository interface {
	GetAccount(ctx context.Context, login string) (*admin.Account, error)
}

// ConfiguredAccounts serves the admin accounts listed in the configuration.
type ConfiguredAccounts struct {
	accounts map[string]admin.Account
}

// NewConfiguredAccounts checks every configured account carries a login
// and a bcrypt hash.
func NewConfiguredAccounts(accounts []config.AdminAccount) (*ConfiguredAccounts, error) {
	m := make(map[string]admin.Account, len(accounts))

	for i, a := range accounts {
		login := strings.TrimSpace(a.Login)
		if login == "" {
			return nil, fmt.Errorf("admin account #%d: login is required", i)
		}
		if _, err := bcrypt.Cost([]byte(a.PasswordHash)); err != nil {
			return nil, fmt.Errorf("admin account %q: password_hash is not a bcrypt hash: %w", login, err)
		}
		if _, ok := m[login]; ok {
			return nil, fmt.Errorf("admin account %q: duplicate login", login)
		}
		m[login] = admin.Account{Login: login, PasswordHash: a.PasswordHash}
	}

	return &ConfiguredAccounts{accounts: m}, nil
}

var _ Repository = (*ConfiguredAccounts)(nil)

func (c *ConfiguredAccounts) GetAccount(_ context.Context, login string) (*admin.Account, error) {
	a, ok := c.accounts[login]
	if !ok {
		return nil, errs.ErrNotFound
	}
	return &a, nil
}

// Len returns the number of configured accounts.
func (c *ConfiguredAccounts) Len() int { return len(c.accounts) }
