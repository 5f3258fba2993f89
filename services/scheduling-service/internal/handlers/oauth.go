package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/ibrahgraphix/FlameCounselling-sub000/services/scheduling-service/internal/gcal"
)

// OAuthFlow is the consent-flow surface of *gcal.Gateway.
type OAuthFlow interface {
	AuthURL(ctx context.Context, counselorID string) (url, state string, err error)
	ExchangeCode(ctx context.Context, req gcal.ExchangeRequest) (gcal.ExchangeResult, error)
}

// OAuthHandler drives the Google consent flow. The callback is hit by a
// browser redirected from Google, so it answers with redirects back to the
// frontend rather than JSON.
type OAuthHandler struct {
	flow           OAuthFlow
	logger         *slog.Logger
	frontendOrigin string
}

func NewOAuthHandler(flow OAuthFlow, logger *slog.Logger, frontendOrigin string) *OAuthHandler {
	return &OAuthHandler{
		flow:           flow,
		logger:         logger,
		frontendOrigin: strings.TrimRight(frontendOrigin, "/"),
	}
}

func (h *OAuthHandler) AuthURL(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	counselorID := strings.TrimSpace(r.URL.Query().Get("counselor_id"))
	if counselorID == "" {
		counselorID = strings.TrimSpace(r.URL.Query().Get("counselorId"))
	}
	if counselorID == "" {
		writeError(w, http.StatusBadRequest, "counselor_id is required")
		return
	}

	authURL, _, err := h.flow.AuthURL(r.Context(), counselorID)
	if err != nil {
		h.logger.Error("auth url generation failed", "counselor_id", counselorID, "err", err)
		writeError(w, http.StatusInternalServerError, "failed to generate auth url")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"url": authURL})
}

func (h *OAuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	q := r.URL.Query()
	if denied := q.Get("error"); denied != "" {
		h.logger.Info("google consent denied", "reason", denied)
		h.redirect(w, r, false)
		return
	}

	code := strings.TrimSpace(q.Get("code"))
	state := strings.TrimSpace(q.Get("state"))
	if code == "" {
		h.redirect(w, r, false)
		return
	}

	res, err := h.flow.ExchangeCode(r.Context(), gcal.ExchangeRequest{Code: code, State: state})
	if err != nil {
		h.logger.Error("oauth code exchange failed", "err", err)
		h.redirect(w, r, false)
		return
	}
	if !res.HasRefreshToken {
		// Tokens are saved but the connection will break on expiry; the
		// frontend prompts for a re-connect with consent forced.
		h.logger.Warn("exchange returned no refresh token", "counselor_id", res.CounselorID)
	}
	h.redirect(w, r, res.Saved && res.HasRefreshToken)
}

func (h *OAuthHandler) redirect(w http.ResponseWriter, r *http.Request, connected bool) {
	flag := "0"
	if connected {
		flag = "1"
	}
	target := h.frontendOrigin + "/settings/calendar?" + url.Values{"google_connected": {flag}}.Encode()
	http.Redirect(w, r, target, http.StatusFound)
}
