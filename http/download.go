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

type downloadResponse struct {
	TokenID            string            `json:"token_id"`
	FileKey            string            `json:"file_key"`
	URL                string            `json:"url"`
	URLs               map[string]string `json:"urls"`
	URLExpiresAt       time.Time         `json:"url_expires_at"`
	RemainingDownloads int               `json:"remaining_downloads"`
	ExpiresAt          time.Time         `json:"expires_at"`
}

func handleDownload(c *core.Core, log logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tokenString := chi.URLParam(r, "token")

		grant, denial, err := c.AuthorizeDownload(r.Context(), &core.DownloadRequest{
			TokenString: tokenString,
			FileKey:     r.URL.Query().Get("file_key"),
			ClientIP:    clientIP(r),
			UserAgent:   r.UserAgent(),
			RequestID:   middleware.GetReqID(r.Context()),
		})
		if err != nil {
			log.Error("download authorization failed", logger.Err(err))
			respondError(w, http.StatusBadGateway, "download authorization could not be completed")
			return
		}
		if denial != nil {
			respondDenial(w, denial, nil)
			return
		}

		respondOk(w, &downloadResponse{
			TokenID:            grant.Token.ID,
			FileKey:            grant.FileKey,
			URL:                grant.URL,
			URLs:               grant.URLs,
			URLExpiresAt:       grant.URLExpiresAt,
			RemainingDownloads: grant.RemainingDownloads,
			ExpiresAt:          grant.Token.ExpiresAt,
		})
	}
}

// recordRequestBody confirms the outcome of a transfer. Success
// defaults to true when omitted.
type recordRequestBody struct {
	FileKey     string `json:"file_key"`
	FileSize    int64  `json:"file_size,omitempty"`
	ContentType string `json:"content_type,omitempty"`
	Success     *bool  `json:"success,omitempty"`
	Error       string `json:"error,omitempty"`
}

type recordResponse struct {
	TokenID            string `json:"token_id"`
	Recorded           bool   `json:"recorded"`
	RemainingDownloads int    `json:"remaining_downloads"`
	Deactivated        bool   `json:"deactivated"`
}

func handleRecord(c *core.Core, log logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tokenString := chi.URLParam(r, "token")

		var body recordRequestBody
		if err := decodeBody(r, &body); err != nil {
			respondError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
			return
		}
		if body.FileKey == "" {
			respondError(w, http.StatusBadRequest, "file_key is required")
			return
		}

		resolved, err := c.ResolveActiveToken(r.Context(), tokenString)
		if err != nil {
			if errors.Is(err, token.ErrNotFound) {
				respondDenial(w, &token.Denial{
					Code:    token.DenialNotFoundOrInactive,
					Message: "this download link is invalid or no longer active",
				}, nil)
				return
			}
			log.Error("resolving token for record", logger.Err(err))
			respondError(w, http.StatusBadGateway, "download could not be recorded")
			return
		}

		event := &token.DownloadEvent{
			FileKey:     body.FileKey,
			UserIP:      clientIP(r),
			UserAgent:   r.UserAgent(),
			FileSize:    body.FileSize,
			ContentType: body.ContentType,
		}
		requestID := middleware.GetReqID(r.Context())

		if body.Success != nil && !*body.Success {
			c.RecordDownloadFailure(r.Context(), resolved.ID, event, body.Error, requestID)
			respondOk(w, &recordResponse{
				TokenID:            resolved.ID,
				Recorded:           true,
				RemainingDownloads: resolved.Remaining(),
			})
			return
		}

		result, err := c.RecordDownload(r.Context(), resolved.ID, event, requestID)
		if err != nil {
			switch {
			case errors.Is(err, token.ErrLimitReached):
				respondDenial(w, &token.Denial{
					Code:       token.DenialLimitReached,
					Message:    "the download limit for this token has been reached",
					Suggestion: "request a new download token",
				}, nil)
			case errors.Is(err, token.ErrNotFound):
				respondDenial(w, &token.Denial{
					Code:    token.DenialNotFoundOrInactive,
					Message: "this download link is invalid or no longer active",
				}, nil)
			default:
				log.Error("recording download failed", logger.Err(err))
				respondError(w, http.StatusBadGateway, "download could not be recorded")
			}
			return
		}

		respondOk(w, &recordResponse{
			TokenID:            result.Token.ID,
			Recorded:           true,
			RemainingDownloads: result.RemainingDownloads,
			Deactivated:        result.Deactivated,
		})
	}
}
