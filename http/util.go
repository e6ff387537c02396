package http

import (
	"encoding/json"
	"net"
	"net/http"

	"github.com/avastel/gatekeeper/token"
)

// ErrorResponse represents a JSON error response
type ErrorResponse struct {
	Errors []string `json:"errors"`
}

// DenialResponse wraps a structured refusal. The classification block
// is only present when debug classification is enabled.
type DenialResponse struct {
	Denial         *token.Denial `json:"denial"`
	Classification any           `json:"classification,omitempty"`
}

// respondError writes an error response with the given status code and message.
func respondError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := &ErrorResponse{
		Errors: []string{message},
	}

	json.NewEncoder(w).Encode(resp)
}

// respondJSON writes a JSON response with the given status code.
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// respondOk writes a successful JSON response with status 200.
func respondOk(w http.ResponseWriter, data any) {
	respondJSON(w, http.StatusOK, data)
}

// respondDenial maps a denial code onto an HTTP status. Missing and
// inactive tokens are indistinguishable on purpose.
func respondDenial(w http.ResponseWriter, denial *token.Denial, classification any) {
	status := http.StatusForbidden
	switch denial.Code {
	case token.DenialNotFoundOrInactive:
		status = http.StatusNotFound
	case token.DenialLimitReached:
		status = http.StatusTooManyRequests
	}

	respondJSON(w, status, &DenialResponse{
		Denial:         denial,
		Classification: classification,
	})
}

// decodeBody decodes a JSON request body into v. An empty body is
// allowed and leaves v untouched.
func decodeBody(r *http.Request, v any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	defer r.Body.Close()

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// clientIP returns the request's remote IP. The RealIP middleware has
// already rewritten RemoteAddr from forwarding headers.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
