package auth

import (
	"context"

	"github.com/habedi/rebaton/db"
)

// TokenStorer defines the contract for any component that can store, retrieve and
// purge the credential pair.
type TokenStorer interface {
	Load(ctx context.Context) (*db.Credentials, error)
	Save(ctx context.Context, creds *db.Credentials) error
	Clear(ctx context.Context) error
}

// TokenRefresher defines the contract for any component that can exchange a refresh
// token for a new credential pair.
type TokenRefresher interface {
	PerformTokenRefresh(ctx context.Context, refreshToken string) (*db.Credentials, error)
}
