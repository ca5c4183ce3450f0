// Package google provides the Gmail and Calendar clients
// authorized with the stored OAuth token pair.
package google

import (
	"context"
	"net/http"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/opsdash/pkg/tokenstore"
	"github.com/effective-security/xlog"
	"golang.org/x/oauth2"
	googleoauth "golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/gmail/v1"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/opsdash/integrations", "google")

var (
	// ErrNotAuthenticated is returned when no token is stored.
	ErrNotAuthenticated = errors.New("Not authenticated. Please sign in with Google.")
	// ErrSessionExpired is returned when the refresh token was revoked,
	// the stored token is cleared.
	ErrSessionExpired = errors.New("Session expired. Please sign in again.")
)

// UserInfoEmailScope allows to read the email of the signed in user.
const UserInfoEmailScope = "https://www.googleapis.com/auth/userinfo.email"

// Scopes requested on sign in.
var Scopes = []string{
	gmail.GmailReadonlyScope,
	gmail.GmailSendScope,
	UserInfoEmailScope,
	calendar.CalendarScope,
}

// OAuthConfig returns the OAuth client configuration for Google.
func OAuthConfig(clientID, clientSecret, redirectURL string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURL,
		Endpoint:     googleoauth.Endpoint,
		Scopes:       Scopes,
	}
}

// OAuth manages the single token pair of the service.
type OAuth struct {
	cfg    *oauth2.Config
	tokens tokenstore.Store
}

// NewOAuth returns the OAuth manager.
func NewOAuth(cfg *oauth2.Config, tokens tokenstore.Store) *OAuth {
	return &OAuth{cfg: cfg, tokens: tokens}
}

// AuthURL returns the consent URL, requesting offline access
// so that a refresh token is issued on every sign in.
func (o *OAuth) AuthURL(state string) string {
	return o.cfg.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

// Exchange converts the authorization code to tokens and stores them.
func (o *OAuth) Exchange(ctx context.Context, code string) error {
	tok, err := o.cfg.Exchange(ctx, code)
	if err != nil {
		return errors.Wrap(err, "google: failed to exchange code")
	}
	if err = o.tokens.Save(ctx, tok); err != nil {
		return err
	}
	logger.ContextKV(ctx, xlog.NOTICE, "status", "signed_in", "expiry", tok.Expiry)
	return nil
}

// IsAuthenticated returns true when a token is stored.
func (o *OAuth) IsAuthenticated(ctx context.Context) bool {
	_, err := o.tokens.Load(ctx)
	return err == nil
}

// SignOut clears the stored token.
func (o *OAuth) SignOut(ctx context.Context) error {
	return o.tokens.Clear(ctx)
}

// Client returns the HTTP client authorized with the stored token.
// Expired tokens are refreshed and the new token is persisted.
func (o *OAuth) Client(ctx context.Context) (*http.Client, error) {
	tok, err := o.tokens.Load(ctx)
	if err != nil {
		if tokenstore.IsNotFound(err) {
			return nil, errors.WithStack(ErrNotAuthenticated)
		}
		return nil, err
	}
	ts := &persistingSource{
		ctx:    ctx,
		base:   o.cfg.TokenSource(ctx, tok),
		tokens: o.tokens,
		last:   tok.AccessToken,
	}
	return oauth2.NewClient(ctx, ts), nil
}

// persistingSource saves refreshed tokens,
// and clears the store when the grant is revoked.
type persistingSource struct {
	ctx    context.Context
	base   oauth2.TokenSource
	tokens tokenstore.Store

	lock sync.Mutex
	last string
}

func (s *persistingSource) Token() (*oauth2.Token, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	tok, err := s.base.Token()
	if err != nil {
		if isInvalidGrant(err) {
			logger.ContextKV(s.ctx, xlog.WARNING, "status", "session_expired", "err", err.Error())
			if cerr := s.tokens.Clear(s.ctx); cerr != nil {
				logger.ContextKV(s.ctx, xlog.ERROR, "reason", "clear_tokens", "err", cerr.Error())
			}
			return nil, errors.WithStack(ErrSessionExpired)
		}
		return nil, errors.Wrap(err, "google: failed to refresh token")
	}

	if tok.AccessToken != s.last {
		s.last = tok.AccessToken
		if err = s.tokens.Save(s.ctx, tok); err != nil {
			logger.ContextKV(s.ctx, xlog.ERROR, "reason", "save_tokens", "err", err.Error())
		} else {
			logger.ContextKV(s.ctx, xlog.DEBUG, "status", "token_refreshed", "expiry", tok.Expiry)
		}
	}
	return tok, nil
}

func isInvalidGrant(err error) bool {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) && re.ErrorCode == "invalid_grant" {
		return true
	}
	return strings.Contains(err.Error(), "invalid_grant")
}

// apiError annotates upstream errors with the service name,
// authentication errors are returned as is.
func apiError(service string, err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, ErrSessionExpired):
		return errors.WithStack(ErrSessionExpired)
	case errors.Is(err, ErrNotAuthenticated):
		return errors.WithStack(ErrNotAuthenticated)
	case isInvalidGrant(err):
		return errors.WithStack(ErrSessionExpired)
	}
	return errors.Wrap(err, service)
}
