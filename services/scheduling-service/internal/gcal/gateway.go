// Package gcal wraps the Google Calendar provider: credential lifecycle,
// free/busy queries, and event CRUD. All provider-specific error types are
// converted to this package's taxonomy at the boundary.
package gcal

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"

	"github.com/ibrahgraphix/FlameCounselling-sub000/services/scheduling-service/internal/model"
)

// CredentialStore is the persistence contract for counselor OAuth columns.
// Implemented by storage.CounselorRepository.
type CredentialStore interface {
	GetCounselor(ctx context.Context, counselorID string) (model.Counselor, error)
	FindCounselorByOAuthState(ctx context.Context, state string) (model.Counselor, bool, error)
	SaveOAuthState(ctx context.Context, counselorID, state string) error
	// SaveTokens stores the token set, defaults the calendar id, marks the
	// counselor connected, and clears any pending oauth state.
	SaveTokens(ctx context.Context, counselorID string, tok StoredToken) error
	UpdateAccessToken(ctx context.Context, counselorID, accessToken string, expiry time.Time) error
}

type StoredToken struct {
	AccessToken  string
	RefreshToken string
	Expiry       time.Time
	CalendarID   string
}

type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	// CallTimeout bounds every provider call. Zero means DefaultCallTimeout.
	CallTimeout time.Duration
}

const DefaultCallTimeout = 5 * time.Second

type Gateway struct {
	oauth       *oauth2.Config
	store       CredentialStore
	logger      *slog.Logger
	callTimeout time.Duration
}

func New(cfg Config, store CredentialStore, logger *slog.Logger) *Gateway {
	timeout := cfg.CallTimeout
	if timeout <= 0 {
		timeout = DefaultCallTimeout
	}
	return &Gateway{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       []string{calendar.CalendarScope},
			Endpoint:     google.Endpoint,
		},
		store:       store,
		logger:      logger,
		callTimeout: timeout,
	}
}

// AuthURL generates the provider consent URL for a counselor. The random state
// nonce is persisted against the counselor row (overwriting any prior pending
// state) so the callback can be correlated back. Offline access plus forced
// consent guarantees Google issues a refresh token.
func (g *Gateway) AuthURL(ctx context.Context, counselorID string) (url, state string, err error) {
	state = uuid.NewString()
	if err := g.store.SaveOAuthState(ctx, counselorID, state); err != nil {
		return "", "", fmt.Errorf("save oauth state: %w", err)
	}
	url = g.oauth.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
	return url, state, nil
}

type ExchangeRequest struct {
	Code        string
	CounselorID string // direct resolution, or
	State       string // lookup via the pending nonce
}

type ExchangeResult struct {
	CounselorID     string
	Saved           bool
	HasRefreshToken bool
}

// ExchangeCode trades an authorization code for tokens and persists them.
// HasRefreshToken=false means Google granted only an access token; the caller
// must treat the connection as degraded and ask the counselor to re-authorize.
func (g *Gateway) ExchangeCode(ctx context.Context, req ExchangeRequest) (ExchangeResult, error) {
	var counselor model.Counselor
	switch {
	case req.CounselorID != "":
		c, err := g.store.GetCounselor(ctx, req.CounselorID)
		if err != nil {
			return ExchangeResult{}, fmt.Errorf("load counselor: %w", err)
		}
		counselor = c
	case req.State != "":
		c, ok, err := g.store.FindCounselorByOAuthState(ctx, req.State)
		if err != nil {
			return ExchangeResult{}, fmt.Errorf("resolve oauth state: %w", err)
		}
		if !ok {
			return ExchangeResult{}, ErrInvalidState
		}
		counselor = c
	default:
		return ExchangeResult{}, ErrInvalidState
	}

	exchangeCtx, cancel := context.WithTimeout(ctx, g.callTimeout)
	defer cancel()
	tok, err := g.oauth.Exchange(exchangeCtx, req.Code)
	if err != nil {
		return ExchangeResult{}, fmt.Errorf("%w: code exchange: %v", ErrAuth, err)
	}

	calendarID := counselor.CalendarID
	if calendarID == "" {
		calendarID = counselor.Email
	}
	stored := StoredToken{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		Expiry:       tokenExpiry(tok),
		CalendarID:   calendarID,
	}
	if err := g.store.SaveTokens(ctx, counselor.ID, stored); err != nil {
		return ExchangeResult{}, fmt.Errorf("store tokens: %w", err)
	}

	return ExchangeResult{
		CounselorID:     counselor.ID,
		Saved:           true,
		HasRefreshToken: tok.RefreshToken != "",
	}, nil
}

// tokenExpiry normalizes the expiry Google returned. Most responses carry
// expires_in, which the oauth2 package has already folded into tok.Expiry, but
// some surfaces hand back expiry_date as epoch milliseconds or an ISO string.
func tokenExpiry(tok *oauth2.Token) time.Time {
	if raw := tok.Extra("expiry_date"); raw != nil {
		switch v := raw.(type) {
		case float64:
			return time.UnixMilli(int64(v))
		case string:
			if ms, err := strconv.ParseInt(v, 10, 64); err == nil {
				return time.UnixMilli(ms)
			}
			if t, err := time.Parse(time.RFC3339, v); err == nil {
				return t
			}
		}
	}
	return tok.Expiry
}

// AuthorizedClient loads the counselor's stored credentials, forces a token
// refresh check, persists any renewed access token, and returns a ready
// calendar client plus the counselor record.
//
// A missing refresh token fails with ErrNoRefreshToken regardless of the
// stored connected flag; a revoked grant fails with ErrInvalidGrant so callers
// can drive "please reconnect" behavior instead of treating it as transient.
func (g *Gateway) AuthorizedClient(ctx context.Context, counselorID string) (*Client, model.Counselor, error) {
	counselor, err := g.store.GetCounselor(ctx, counselorID)
	if err != nil {
		return nil, model.Counselor{}, fmt.Errorf("load counselor: %w", err)
	}
	if counselor.RefreshToken == "" {
		return nil, counselor, ErrNoRefreshToken
	}

	seed := &oauth2.Token{
		AccessToken:  counselor.AccessToken,
		RefreshToken: counselor.RefreshToken,
		TokenType:    "Bearer",
	}
	if counselor.TokenExpiry != nil {
		seed.Expiry = *counselor.TokenExpiry
	}

	refreshCtx, cancel := context.WithTimeout(ctx, g.callTimeout)
	fresh, err := g.oauth.TokenSource(refreshCtx, seed).Token()
	cancel()
	if err != nil {
		if invalidGrant(err) {
			return nil, counselor, fmt.Errorf("%w: %v", ErrInvalidGrant, err)
		}
		return nil, counselor, fmt.Errorf("%w: token refresh: %v", ErrAuth, err)
	}

	if fresh.AccessToken != counselor.AccessToken {
		// Best effort: losing the renewed token only costs one extra refresh
		// on the next call.
		if err := g.store.UpdateAccessToken(ctx, counselorID, fresh.AccessToken, fresh.Expiry); err != nil {
			g.logger.Warn("failed to persist refreshed access token",
				"counselor_id", counselorID, "err", err)
		}
	}

	source := oauth2.ReuseTokenSource(fresh, g.oauth.TokenSource(ctx, seed))
	client, err := newClient(ctx, source, g.callTimeout)
	if err != nil {
		return nil, counselor, err
	}
	return client, counselor, nil
}
