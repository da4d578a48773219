// Package google links user accounts to Google Drive and Gmail.
//
// Credentials travel as an opaque JSON token blob stored on models.GoogleAccount.
// Every call that refreshes the access token writes the new blob back onto the
// account; callers persist the account afterwards.
package google

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"

	"github.com/motorworks/invoicegen/internal/apperr"
	"github.com/motorworks/invoicegen/internal/config"
	"github.com/motorworks/invoicegen/internal/models"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	googleoauth "golang.org/x/oauth2/google"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/gmail/v1"
	oauthapi "google.golang.org/api/oauth2/v2"
	"google.golang.org/api/option"
)

// Scopes requested when linking an account.
var Scopes = []string{
	oauthapi.UserinfoEmailScope,
	drive.DriveFileScope,
	gmail.GmailSendScope,
	"openid",
}

// ErrNotConnected is returned when an account has no stored credentials.
var ErrNotConnected = errors.New("google account is not connected")

// Client performs Google API calls on behalf of linked accounts.
type Client struct {
	oauth    *oauth2.Config
	endpoint string
	logger   *zap.Logger
}

// Option customises a Client.
type Option func(*Client)

// WithEndpoint points every API service at a different base URL.
func WithEndpoint(url string) Option {
	return func(c *Client) { c.endpoint = url }
}

// New builds a Client. With incomplete OAuth settings the client exists but
// every call returns a configuration error.
func New(cfg config.GoogleConfig, logger *zap.Logger, opts ...Option) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Client{logger: logger.Named("google")}
	if cfg.Enabled() {
		c.oauth = &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       Scopes,
			Endpoint:     googleoauth.Endpoint,
		}
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Enabled reports whether OAuth is configured.
func (c *Client) Enabled() bool {
	return c != nil && c.oauth != nil
}

func (c *Client) config(op string) (*oauth2.Config, error) {
	if !c.Enabled() {
		return nil, apperr.Config(op, "Google OAuth client configuration is missing. Set GOOGLE_CLIENT_ID, GOOGLE_CLIENT_SECRET and GOOGLE_REDIRECT_URI in the environment.")
	}
	return c.oauth, nil
}

// AuthCodeURL is the consent page the user is redirected to.
func (c *Client) AuthCodeURL(state string) (string, error) {
	cfg, err := c.config("google.AuthCodeURL")
	if err != nil {
		return "", err
	}
	return cfg.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce), nil
}

// Exchange trades an authorization code for a credential blob.
func (c *Client) Exchange(ctx context.Context, code string) ([]byte, error) {
	const op = "google.Exchange"
	cfg, err := c.config(op)
	if err != nil {
		return nil, err
	}
	tok, err := cfg.Exchange(ctx, code)
	if err != nil {
		return nil, apperr.TransportErr(op, err)
	}
	return json.Marshal(tok)
}

// recorder remembers the last token handed out by src.
type recorder struct {
	src  oauth2.TokenSource
	mu   sync.Mutex
	last *oauth2.Token
}

func (r *recorder) Token() (*oauth2.Token, error) {
	tok, err := r.src.Token()
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	r.last = tok
	r.mu.Unlock()
	return tok, nil
}

// session is an authenticated HTTP client bound to one account.
type session struct {
	client  *Client
	account *models.GoogleAccount
	start   *oauth2.Token
	tokens  *recorder
	http    *http.Client
}

func decodeToken(blob []byte) (*oauth2.Token, error) {
	if len(bytes.TrimSpace(blob)) == 0 {
		return nil, ErrNotConnected
	}
	var tok oauth2.Token
	if err := json.Unmarshal(blob, &tok); err != nil {
		return nil, err
	}
	if tok.AccessToken == "" && tok.RefreshToken == "" {
		return nil, ErrNotConnected
	}
	return &tok, nil
}

func (c *Client) session(ctx context.Context, op string, acct *models.GoogleAccount) (*session, error) {
	cfg, err := c.config(op)
	if err != nil {
		return nil, err
	}
	if acct == nil {
		return nil, apperr.Config(op, "Connect a Google account first.")
	}
	tok, err := decodeToken(acct.Credentials)
	if err != nil {
		return nil, apperr.Config(op, "Connect a Google account first.")
	}
	rec := &recorder{src: cfg.TokenSource(ctx, tok)}
	return &session{
		client:  c,
		account: acct,
		start:   tok,
		tokens:  rec,
		http:    oauth2.NewClient(ctx, rec),
	}, nil
}

// writeBack stores a refreshed token on the account. It reports whether the
// blob changed.
func (s *session) writeBack() bool {
	s.tokens.mu.Lock()
	last := s.tokens.last
	s.tokens.mu.Unlock()
	if last == nil || (last.AccessToken == s.start.AccessToken && last.Expiry.Equal(s.start.Expiry)) {
		return false
	}
	blob, err := json.Marshal(last)
	if err != nil {
		return false
	}
	s.account.Credentials = blob
	s.client.logger.Debug("token refreshed", zap.Uint("account_id", s.account.ID))
	return true
}

func (s *session) options() []option.ClientOption {
	opts := []option.ClientOption{option.WithHTTPClient(s.http)}
	if s.client.endpoint != "" {
		opts = append(opts, option.WithEndpoint(s.client.endpoint))
	}
	return opts
}

// AccountEmail asks Google for the address of the linked account and stores it.
func (c *Client) AccountEmail(ctx context.Context, acct *models.GoogleAccount) (string, error) {
	const op = "google.AccountEmail"
	s, err := c.session(ctx, op, acct)
	if err != nil {
		return "", err
	}
	defer s.writeBack()

	svc, err := oauthapi.NewService(ctx, s.options()...)
	if err != nil {
		return "", apperr.TransportErr(op, err)
	}
	info, err := svc.Userinfo.Get().Context(ctx).Do()
	if err != nil {
		return "", apperr.TransportErr(op, err)
	}
	if info.Email != "" {
		acct.Email = info.Email
	}
	return acct.Email, nil
}
