package http

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avastel/gatekeeper/catalog"
	"github.com/avastel/gatekeeper/core"
	"github.com/avastel/gatekeeper/delivery"
	"github.com/avastel/gatekeeper/entitlement"
	log "github.com/avastel/gatekeeper/logger"
	"github.com/avastel/gatekeeper/token"
)

const testUser = "user-42"

func testLogger() log.Logger {
	return log.New(&log.Config{
		Level:       log.ErrorLevel,
		Format:      log.JSONFormat,
		Outputs:     []io.Writer{io.Discard},
		Environment: "production",
	})
}

func newTestHandler(t *testing.T, debug bool) (http.Handler, *entitlement.StaticOracle) {
	t.Helper()

	cat := catalog.NewStaticCatalog()
	cat.AddProduct(&catalog.Product{
		ID:       "prod123",
		Name:     "E-Book Bundle",
		FileKeys: []string{"files/book.pdf", "files/book.epub"},
		Active:   true,
	})

	oracle := entitlement.NewStaticOracle()

	codec, err := token.NewCodec("test-signing-key")
	require.NoError(t, err)

	c, err := core.NewCore(&core.CoreConfig{
		Logger:              testLogger(),
		Store:               token.NewInmemStore(),
		Codec:               codec,
		Catalog:             cat,
		Entitlement:         oracle,
		Signer:              delivery.NewStaticSigner("https://downloads.example.com"),
		DebugClassification: debug,
	})
	require.NoError(t, err)
	t.Cleanup(func() { c.Shutdown() })

	return Handler(&HandlerProperties{Core: c, Logger: testLogger()}), oracle
}

func doJSON(t *testing.T, handler http.Handler, method, path string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()

	var reqBody io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reqBody = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reqBody)
	req.RemoteAddr = "203.0.113.10:52000"
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	var decoded map[string]any
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decoded))
	}
	return rec, decoded
}

func issueViaAPI(t *testing.T, handler http.Handler, oracle *entitlement.StaticOracle) map[string]any {
	t.Helper()

	oracle.GrantLicense(testUser, "license_ABC123", "prod123")

	rec, body := doJSON(t, handler, http.MethodPost, "/v1/access/license_ABC123", map[string]any{
		"user_id": testUser,
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	return body
}

func TestHandler_AccessGranted(t *testing.T) {
	handler, oracle := newTestHandler(t, false)

	body := issueViaAPI(t, handler, oracle)

	assert.NotEmpty(t, body["token_id"])
	assert.NotEmpty(t, body["token"])
	assert.Equal(t, "prod123", body["product_id"])
	assert.Equal(t, float64(3), body["max_downloads"])

	urls, ok := body["download_urls"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, urls, "files/book.pdf")

	// Classification internals stay hidden unless debug is on.
	assert.NotContains(t, body, "classification")
}

func TestHandler_AccessNotEntitled(t *testing.T) {
	handler, _ := newTestHandler(t, false)

	rec, body := doJSON(t, handler, http.MethodPost, "/v1/access/license_NOPE", map[string]any{
		"user_id": testUser,
	})
	require.Equal(t, http.StatusForbidden, rec.Code)

	denial, ok := body["denial"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, token.DenialNotEntitled, denial["code"])
	assert.NotEmpty(t, denial["suggestion"])
}

func TestHandler_AccessDebugClassification(t *testing.T) {
	handler, _ := newTestHandler(t, true)

	rec, body := doJSON(t, handler, http.MethodPost, "/v1/access/license_NOPE", map[string]any{
		"user_id": testUser,
	})
	require.Equal(t, http.StatusForbidden, rec.Code)

	classification, ok := body["classification"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "license", classification["kind"])
}

func TestHandler_AccessRequiresUserID(t *testing.T) {
	handler, _ := newTestHandler(t, false)

	rec, _ := doJSON(t, handler, http.MethodPost, "/v1/access/license_ABC123", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandler_Download(t *testing.T) {
	handler, oracle := newTestHandler(t, false)

	issued := issueViaAPI(t, handler, oracle)
	secret := issued["token"].(string)

	rec, body := doJSON(t, handler, http.MethodGet, "/v1/download/"+secret, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, "files/book.pdf", body["file_key"])
	assert.Contains(t, body["url"], "https://downloads.example.com")
	assert.Len(t, body["urls"], 2)
	assert.Equal(t, float64(3), body["remaining_downloads"])
}

func TestHandler_DownloadUnknownToken(t *testing.T) {
	handler, _ := newTestHandler(t, false)

	rec, body := doJSON(t, handler, http.MethodGet, "/v1/download/dlt_doesnotexist", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	denial := body["denial"].(map[string]any)
	assert.Equal(t, token.DenialNotFoundOrInactive, denial["code"])
}

func TestHandler_RecordDownload(t *testing.T) {
	handler, oracle := newTestHandler(t, false)

	issued := issueViaAPI(t, handler, oracle)
	secret := issued["token"].(string)

	rec, body := doJSON(t, handler, http.MethodPost, "/v1/download/"+secret+"/record", map[string]any{
		"file_key":     "files/book.pdf",
		"file_size":    1024,
		"content_type": "application/pdf",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, true, body["recorded"])
	assert.Equal(t, float64(2), body["remaining_downloads"])
	assert.Equal(t, false, body["deactivated"])
}

func TestHandler_RecordFailureSpendsNoQuota(t *testing.T) {
	handler, oracle := newTestHandler(t, false)

	issued := issueViaAPI(t, handler, oracle)
	secret := issued["token"].(string)

	rec, body := doJSON(t, handler, http.MethodPost, "/v1/download/"+secret+"/record", map[string]any{
		"file_key": "files/book.pdf",
		"success":  false,
		"error":    "connection reset",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(3), body["remaining_downloads"])
}

func TestHandler_RecordRequiresFileKey(t *testing.T) {
	handler, oracle := newTestHandler(t, false)

	issued := issueViaAPI(t, handler, oracle)
	secret := issued["token"].(string)

	rec, _ := doJSON(t, handler, http.MethodPost, "/v1/download/"+secret+"/record", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandler_RecordExhaustsQuota(t *testing.T) {
	handler, oracle := newTestHandler(t, false)

	issued := issueViaAPI(t, handler, oracle)
	secret := issued["token"].(string)

	for i := 0; i < 3; i++ {
		rec, _ := doJSON(t, handler, http.MethodPost, "/v1/download/"+secret+"/record", map[string]any{
			"file_key": "files/book.pdf",
		})
		require.Equal(t, http.StatusOK, rec.Code)
	}

	// The token closed on its last download, so the secret no longer
	// resolves.
	rec, body := doJSON(t, handler, http.MethodPost, "/v1/download/"+secret+"/record", map[string]any{
		"file_key": "files/book.pdf",
	})
	require.Equal(t, http.StatusNotFound, rec.Code)
	denial := body["denial"].(map[string]any)
	assert.Equal(t, token.DenialNotFoundOrInactive, denial["code"])
}

func TestHandler_GetTokenHidesSecret(t *testing.T) {
	handler, oracle := newTestHandler(t, false)

	issued := issueViaAPI(t, handler, oracle)
	id := issued["token_id"].(string)

	rec, body := doJSON(t, handler, http.MethodGet, "/v1/tokens/"+id, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, id, body["id"])
	assert.Equal(t, "active", body["status"])
	assert.NotContains(t, body, "token")
	assert.NotContains(t, rec.Body.String(), issued["token"].(string))
}

func TestHandler_Regenerate(t *testing.T) {
	handler, oracle := newTestHandler(t, false)

	issued := issueViaAPI(t, handler, oracle)
	id := issued["token_id"].(string)
	oldSecret := issued["token"].(string)

	rec, body := doJSON(t, handler, http.MethodPost, "/v1/tokens/"+id+"/regenerate", map[string]any{
		"reason": "suspected_leak",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	newSecret := body["token"].(string)
	assert.NotEqual(t, oldSecret, newSecret)

	// The old secret is dead, the new one works.
	recOld, _ := doJSON(t, handler, http.MethodGet, "/v1/download/"+oldSecret, nil)
	assert.Equal(t, http.StatusNotFound, recOld.Code)

	recNew, _ := doJSON(t, handler, http.MethodGet, "/v1/download/"+newSecret, nil)
	assert.Equal(t, http.StatusOK, recNew.Code)
}

func TestHandler_Deactivate(t *testing.T) {
	handler, oracle := newTestHandler(t, false)

	issued := issueViaAPI(t, handler, oracle)
	id := issued["token_id"].(string)

	rec, body := doJSON(t, handler, http.MethodPost, "/v1/tokens/"+id+"/deactivate", map[string]any{
		"reason": "security",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "inactive", body["status"])
	assert.Equal(t, "security", body["deactivation_reason"])
}

func TestHandler_DeactivateRejectsBadReason(t *testing.T) {
	handler, oracle := newTestHandler(t, false)

	issued := issueViaAPI(t, handler, oracle)
	id := issued["token_id"].(string)

	rec, _ := doJSON(t, handler, http.MethodPost, "/v1/tokens/"+id+"/deactivate", map[string]any{
		"reason": "expired",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandler_Health(t *testing.T) {
	handler, _ := newTestHandler(t, false)

	rec, body := doJSON(t, handler, http.MethodGet, "/v1/sys/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", body["status"])
}

func TestHandler_Metrics(t *testing.T) {
	handler, oracle := newTestHandler(t, false)

	issueViaAPI(t, handler, oracle)

	rec, body := doJSON(t, handler, http.MethodGet, "/v1/sys/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), body["tokens_issued"])
}

func TestHandler_Sweep(t *testing.T) {
	handler, oracle := newTestHandler(t, false)

	issueViaAPI(t, handler, oracle)

	rec, body := doJSON(t, handler, http.MethodPost, "/v1/sys/sweep", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(0), body["deactivated"])
}

func TestHandler_PathOutsideV1(t *testing.T) {
	handler, _ := newTestHandler(t, false)

	rec, _ := doJSON(t, handler, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
