package api

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/welldanyogia/webrana-crm-mail/internal/models"
	"github.com/welldanyogia/webrana-crm-mail/internal/repository"
	"github.com/welldanyogia/webrana-crm-mail/internal/testutil"
	"github.com/welldanyogia/webrana-crm-mail/internal/tracking"
	"github.com/welldanyogia/webrana-crm-mail/internal/vault"
)

const testKey = "router-key"

func newTestRouter(t *testing.T) (http.Handler, *gorm.DB) {
	t.Helper()

	db := testutil.NewDB(t)
	v, err := vault.New("")
	require.NoError(t, err)

	tokens := tracking.NewTokens("pixel-secret", "https://crm.acme.test")
	tracker := tracking.NewTracker(tokens, repository.NewEmailRepository(db), "https://acme.test", nil, nil, nil)

	e := NewRouter(&RouterConfig{
		DB:      db,
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		Vault:   v,
		Tracker: tracker,
		APIKey:  testKey,
	})
	return e, db
}

func serve(h http.Handler, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func identityHeaders(companyID, userID uint) map[string]string {
	return map[string]string{
		"Authorization":  "Bearer " + testKey,
		"X-Company-ID":   strconv.FormatUint(uint64(companyID), 10),
		"X-User-ID":      strconv.FormatUint(uint64(userID), 10),
		"X-User-Name":    "Dana",
		"X-Company-Name": "Acme",
	}
}

func TestRouter_HealthIsPublic(t *testing.T) {
	h, _ := newTestRouter(t)

	rec := serve(h, http.MethodGet, "/health", "", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"vault_mode":"passthrough"`)
	assert.NotContains(t, rec.Body.String(), "queue_pending")
	assert.NotEmpty(t, rec.Header().Get("X-Content-Type-Options"))
}

func TestRouter_APIRequiresKey(t *testing.T) {
	h, _ := newTestRouter(t)

	rec := serve(h, http.MethodGet, "/api/threads", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = serve(h, http.MethodGet, "/api/threads", "", map[string]string{"Authorization": "Bearer wrong"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRouter_APIRequiresIdentity(t *testing.T) {
	h, _ := newTestRouter(t)

	rec := serve(h, http.MethodGet, "/api/threads", "", map[string]string{"Authorization": "Bearer " + testKey})

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRouter_ListThreads_Empty(t *testing.T) {
	h, _ := newTestRouter(t)

	rec := serve(h, http.MethodGet, "/api/threads", "", identityHeaders(7, 42))

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Success bool `json:"success"`
		Meta    struct {
			Total int64 `json:"total"`
			Limit int   `json:"limit"`
		} `json:"meta"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body.Success)
	assert.Equal(t, int64(0), body.Meta.Total)
	assert.Equal(t, 50, body.Meta.Limit)
}

func TestRouter_ThreadsAreScopedToOwner(t *testing.T) {
	h, db := newTestRouter(t)

	account := testutil.SeedAccount(t, db, 7, 42, "dana@acme.test")
	thread := &models.Thread{
		CompanyID:     7,
		AccountID:     account.ID,
		Subject:       "Quote request",
		LastMessageAt: time.Now(),
	}
	require.NoError(t, db.Create(thread).Error)
	path := "/api/threads/" + strconv.FormatUint(uint64(thread.ID), 10)

	rec := serve(h, http.MethodGet, path, "", identityHeaders(7, 42))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Quote request")

	rec = serve(h, http.MethodGet, path, "", identityHeaders(7, 43))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRouter_TemplatePreviewIsNotAnID(t *testing.T) {
	h, _ := newTestRouter(t)

	body := `{"subject":"Hi {customer_name}","body_text":"{user_name} at {company_name}","sample_data":{"customer_name":"Ana"}}`
	rec := serve(h, http.MethodPost, "/api/templates/preview", body, identityHeaders(7, 42))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"subject":"Hi Ana"`)
	assert.Contains(t, rec.Body.String(), `"body_text":"Dana at Acme"`)
}

func TestRouter_TrackingIsPublic(t *testing.T) {
	h, _ := newTestRouter(t)

	rec := serve(h, http.MethodGet, "/t/o/not-a-token", "", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/gif", rec.Header().Get("Content-Type"))
}
