// Package tokenstore persists the single OAuth token pair of the service.
package tokenstore

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/xlog"
	"golang.org/x/oauth2"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/opsdash/pkg", "tokenstore")

// ErrNotFound is returned by Load when no token is stored.
var ErrNotFound = errors.New("token not found")

// DefaultExpiry is applied to tokens saved without an expiry.
const DefaultExpiry = time.Hour

// Store persists the OAuth token pair.
type Store interface {
	// Load returns the stored token, or ErrNotFound.
	Load(ctx context.Context) (*oauth2.Token, error)
	// Save replaces the stored token.
	Save(ctx context.Context, tok *oauth2.Token) error
	// Clear removes the stored token, forcing a new sign in.
	Clear(ctx context.Context) error
}

// record is the persisted form, expiry_date is in Unix milliseconds.
type record struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	TokenType    string `json:"token_type,omitempty"`
	ExpiryDate   int64  `json:"expiry_date"`
}

func toRecord(tok *oauth2.Token, now time.Time) *record {
	expiry := tok.Expiry
	if expiry.IsZero() {
		expiry = now.Add(DefaultExpiry)
	}
	return &record{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenType:    tok.TokenType,
		ExpiryDate:   expiry.UnixMilli(),
	}
}

func (r *record) token() *oauth2.Token {
	tok := &oauth2.Token{
		AccessToken:  r.AccessToken,
		RefreshToken: r.RefreshToken,
		TokenType:    r.TokenType,
	}
	if r.ExpiryDate > 0 {
		tok.Expiry = time.UnixMilli(r.ExpiryDate)
	}
	return tok
}

// IsNotFound returns true when err is ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
