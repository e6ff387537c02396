package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/avastel/gatekeeper/core"
	"github.com/avastel/gatekeeper/logger"
	"github.com/avastel/gatekeeper/token"
)

// tokenResponse is token metadata without the secret string. The
// secret is only ever returned by issuance and regeneration.
type tokenResponse struct {
	ID                 string     `json:"id"`
	UserID             string     `json:"user_id"`
	OrderID            string     `json:"order_id,omitempty"`
	ProductID          string     `json:"product_id"`
	FileKeys           []string   `json:"file_keys"`
	MaxDownloads       int        `json:"max_downloads"`
	DownloadCount      int        `json:"download_count"`
	RemainingDownloads int        `json:"remaining_downloads"`
	CreatedAt          time.Time  `json:"created_at"`
	ExpiresAt          time.Time  `json:"expires_at"`
	RegeneratedAt      *time.Time `json:"regenerated_at,omitempty"`
	SingleUse          bool       `json:"single_use"`
	Status             string     `json:"status"`
	DeactivationReason string     `json:"deactivation_reason,omitempty"`
	DeactivatedAt      *time.Time `json:"deactivated_at,omitempty"`
}

func toTokenResponse(t *token.DownloadToken) *tokenResponse {
	return &tokenResponse{
		ID:                 t.ID,
		UserID:             t.UserID,
		OrderID:            t.OrderID,
		ProductID:          t.ProductID,
		FileKeys:           t.FileKeys,
		MaxDownloads:       t.MaxDownloads,
		DownloadCount:      t.DownloadCount,
		RemainingDownloads: t.Remaining(),
		CreatedAt:          t.CreatedAt,
		ExpiresAt:          t.ExpiresAt,
		RegeneratedAt:      t.RegeneratedAt,
		SingleUse:          t.SingleUse,
		Status:             string(t.Status),
		DeactivationReason: string(t.DeactivationReason),
		DeactivatedAt:      t.DeactivatedAt,
	}
}

func handleGetToken(c *core.Core, log logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		t, err := c.GetToken(r.Context(), id)
		if err != nil {
			if errors.Is(err, token.ErrNotFound) {
				respondError(w, http.StatusNotFound, "token not found")
				return
			}
			log.Error("fetching token failed", logger.String("token_id", id), logger.Err(err))
			respondError(w, http.StatusBadGateway, "token could not be fetched")
			return
		}

		respondOk(w, toTokenResponse(t))
	}
}

type regenerateRequestBody struct {
	Reason string `json:"reason,omitempty"`
}

type regenerateResponse struct {
	ID        string    `json:"id"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

func handleRegenerate(c *core.Core, log logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		var body regenerateRequestBody
		if err := decodeBody(r, &body); err != nil {
			respondError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
			return
		}

		regenerated, err := c.RegenerateToken(r.Context(), id, body.Reason, middleware.GetReqID(r.Context()))
		if err != nil {
			if errors.Is(err, token.ErrNotFound) {
				respondError(w, http.StatusNotFound, "token not found")
				return
			}
			log.Error("regenerating token failed", logger.String("token_id", id), logger.Err(err))
			respondError(w, http.StatusBadGateway, "token could not be regenerated")
			return
		}

		respondOk(w, &regenerateResponse{
			ID:        regenerated.ID,
			Token:     regenerated.Token,
			ExpiresAt: regenerated.ExpiresAt,
		})
	}
}

type deactivateRequestBody struct {
	Reason string `json:"reason,omitempty"`
}

func handleDeactivate(c *core.Core, log logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		var body deactivateRequestBody
		if err := decodeBody(r, &body); err != nil {
			respondError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
			return
		}

		switch token.DeactivationReason(body.Reason) {
		case "", token.ReasonManual, token.ReasonSecurity:
		default:
			respondError(w, http.StatusBadRequest, "reason must be manual or security")
			return
		}

		err := c.DeactivateToken(r.Context(), id, token.DeactivationReason(body.Reason), middleware.GetReqID(r.Context()))
		if err != nil {
			if errors.Is(err, token.ErrNotFound) {
				respondError(w, http.StatusNotFound, "token not found")
				return
			}
			log.Error("deactivating token failed", logger.String("token_id", id), logger.Err(err))
			respondError(w, http.StatusBadGateway, "token could not be deactivated")
			return
		}

		t, err := c.GetToken(r.Context(), id)
		if err != nil {
			respondOk(w, map[string]string{"status": string(token.StatusInactive)})
			return
		}

		respondOk(w, toTokenResponse(t))
	}
}
