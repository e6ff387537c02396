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

// accessRequestBody is the caller-supplied context for an access
// request. Quota and validity fall back to server policy when zero.
type accessRequestBody struct {
	UserID       string `json:"user_id"`
	OrderID      string `json:"order_id,omitempty"`
	MaxDownloads int    `json:"max_downloads,omitempty"`
	ExpiresIn    string `json:"expires_in,omitempty"`

	SingleUse           bool `json:"single_use,omitempty"`
	IPValidation        bool `json:"ip_validation,omitempty"`
	UserAgentValidation bool `json:"user_agent_validation,omitempty"`
}

type accessResponse struct {
	TokenID            string            `json:"token_id"`
	Token              string            `json:"token"`
	ProductID          string            `json:"product_id"`
	FileKeys           []string          `json:"file_keys"`
	MaxDownloads       int               `json:"max_downloads"`
	RemainingDownloads int               `json:"remaining_downloads"`
	ExpiresAt          time.Time         `json:"expires_at"`
	DownloadURLs       map[string]string `json:"download_urls"`
	URLExpiresAt       time.Time         `json:"url_expires_at"`
	Method             string            `json:"method,omitempty"`
	Classification     any               `json:"classification,omitempty"`
}

func handleAccess(c *core.Core, log logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identifier := chi.URLParam(r, "identifier")

		var body accessRequestBody
		if err := decodeBody(r, &body); err != nil {
			respondError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
			return
		}
		if body.UserID == "" {
			respondError(w, http.StatusBadRequest, "user_id is required")
			return
		}

		var expiresIn time.Duration
		if body.ExpiresIn != "" {
			var err error
			expiresIn, err = time.ParseDuration(body.ExpiresIn)
			if err != nil {
				respondError(w, http.StatusBadRequest, "invalid expires_in: "+err.Error())
				return
			}
		}

		result, err := c.RequestAccess(r.Context(), &core.AccessRequest{
			Identifier:          identifier,
			UserID:              body.UserID,
			OrderID:             body.OrderID,
			MaxDownloads:        body.MaxDownloads,
			ExpiresIn:           expiresIn,
			SingleUse:           body.SingleUse,
			IPValidation:        body.IPValidation,
			UserAgentValidation: body.UserAgentValidation,
			ClientIP:            clientIP(r),
			UserAgent:           r.UserAgent(),
			RequestID:           middleware.GetReqID(r.Context()),
		})
		if err != nil {
			switch {
			case isIssuePreconditionError(err):
				respondError(w, http.StatusBadRequest, err.Error())
			default:
				log.Error("access request failed", logger.String("identifier", identifier), logger.Err(err))
				respondError(w, http.StatusBadGateway, "access request could not be completed")
			}
			return
		}

		var classification any
		if c.DebugClassification() {
			classification = result.Classification
		}

		if result.Denial != nil {
			respondDenial(w, result.Denial, classification)
			return
		}

		issued := result.Token
		resp := &accessResponse{
			TokenID:            issued.ID,
			Token:              issued.Token,
			ProductID:          issued.ProductID,
			FileKeys:           issued.FileKeys,
			MaxDownloads:       issued.MaxDownloads,
			RemainingDownloads: issued.Remaining(),
			ExpiresAt:          issued.ExpiresAt,
			DownloadURLs:       result.DownloadURLs,
			URLExpiresAt:       result.URLExpiresAt,
			Classification:     classification,
		}
		if result.Decision != nil {
			resp.Method = result.Decision.Method
		}

		respondJSON(w, http.StatusCreated, resp)
	}
}

func isIssuePreconditionError(err error) bool {
	for _, sentinel := range []error{
		token.ErrNoFileKeys,
		token.ErrInvalidQuota,
		token.ErrInvalidValidity,
		token.ErrMissingUser,
		token.ErrMissingProduct,
	} {
		if errors.Is(err, sentinel) {
			return true
		}
	}
	return false
}
