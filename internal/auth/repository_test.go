package auth

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/KretovDmitry/nairabulk-orders/internal/config"
	"github.com/KretovDmitry/nairabulk-orders/internal/models/admin"
	"github.com/KretovDmitry/nairabulk-orders/internal/models/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

// Lock in case of t.Parallel call.
type mockRepository struct {
	items []admin.Account
	mu    sync.RWMutex
}

func (m *mockRepository) GetAccount(_ context.Context, login string) (*admin.Account, error) {
	if login == "panic" {
		return nil, errors.New("don't panic!")
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, item := range m.items {
		if item.Login == login {
			return &item, nil
		}
	}
	return nil, errs.ErrNotFound
}

func (m *mockRepository) remove(login string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, item := range m.items {
		if item.Login == login {
			m.items = append(m.items[:i], m.items[i+1:]...)
			return
		}
	}
}

func hash(t *testing.T, password string) string {
	t.Helper()
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return string(h)
}

func TestConfiguredAccounts(t *testing.T) {
	gopherHash := hash(t, "gopher")

	repo, err := NewConfiguredAccounts([]config.AdminAccount{
		{Login: " gopher ", PasswordHash: gopherHash},
		{Login: "ops", PasswordHash: hash(t, "ops")},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, repo.Len())

	a, err := repo.GetAccount(context.Background(), "gopher")
	require.NoError(t, err)
	assert.Equal(t, "gopher", a.Login)
	assert.Equal(t, gopherHash, a.PasswordHash)

	_, err = repo.GetAccount(context.Background(), "nobody")
	assert.ErrorIs(t, err, errs.ErrNotFound)
}

func TestNewConfiguredAccountsErrors(t *testing.T) {
	valid := hash(t, "gopher")

	tests := []struct {
		name     string
		accounts []config.AdminAccount
	}{
		{name: "empty login", accounts: []config.AdminAccount{{Login: " ", PasswordHash: valid}}},
		{name: "plain password", accounts: []config.AdminAccount{{Login: "gopher", PasswordHash: "gopher"}}},
		{name: "duplicate", accounts: []config.AdminAccount{
			{Login: "gopher", PasswordHash: valid},
			{Login: "gopher", PasswordHash: valid},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewConfiguredAccounts(tt.accounts)
			assert.Error(t, err)
		})
	}
}

func TestNewConfiguredAccountsNone(t *testing.T) {
	repo, err := NewConfiguredAccounts(nil)
	require.NoError(t, err)
	assert.Zero(t, repo.Len())
}
