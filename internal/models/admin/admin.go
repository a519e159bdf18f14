package admin

import "context"

// Account is an admin panel login. PasswordHash is a bcrypt hash.
type Account struct {
	Login        string `json:"login"`
	PasswordHash string `json:"-"`
}

// key is an unexported type for keys defined in this package.
// This prevents collisions with keys defined in other packages.
type key int

// accountKey is the key for admin.Account values in Contexts. It is
// unexported; clients use admin.NewContext and admin.FromContext
// instead of using this key directly.
var accountKey key

// NewContext returns a new Context that carries value a.
func NewContext(ctx context.Context, a *Account) context.Context {
	return context.WithValue(ctx, accountKey, a)
}

// FromContext returns the Account value stored in ctx, if any.
func FromContext(ctx context.Context) (*Account, bool) {
	a, ok := ctx.Value(accountKey).(*Account)
	return a, ok && a != nil
}
