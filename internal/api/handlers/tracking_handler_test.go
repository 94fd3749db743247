package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/welldanyogia/webrana-crm-mail/internal/tracking"
)

type recordedEvents struct {
	opens  []uint
	clicks []uint
}

func (r *recordedEvents) RecordOpen(_ context.Context, id uint, _ time.Time) error {
	r.opens = append(r.opens, id)
	return nil
}

func (r *recordedEvents) RecordClick(_ context.Context, id uint, _ time.Time) error {
	r.clicks = append(r.clicks, id)
	return nil
}

func setupTrackingHandler() (*TrackingHandler, *tracking.Tokens, *recordedEvents) {
	tokens := tracking.NewTokens("pixel-secret", "https://crm.acme.test")
	events := &recordedEvents{}
	tracker := tracking.NewTracker(tokens, events, "https://crm.acme.test/", nil, nil, nil)
	return NewTrackingHandler(tracker), tokens, events
}

func trackingRequest(path, token string) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, path+token, nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("token")
	c.SetParamValues(token)
	return c, rec
}

func TestTrackingHandler_Open_RecordsAndServesPixel(t *testing.T) {
	handler, tokens, events := setupTrackingHandler()
	c, rec := trackingRequest("/t/o/", tokens.IssueOpen(15))

	require.NoError(t, handler.Open(c))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/gif", rec.Header().Get(echo.HeaderContentType))
	assert.Equal(t, "no-cache, no-store, must-revalidate", rec.Header().Get(echo.HeaderCacheControl))
	assert.Equal(t, tracking.Pixel, rec.Body.Bytes())
	assert.Equal(t, []uint{15}, events.opens)
}

func TestTrackingHandler_Open_InvalidTokenLooksTheSame(t *testing.T) {
	handler, _, events := setupTrackingHandler()
	c, rec := trackingRequest("/t/o/", "forged-token")

	require.NoError(t, handler.Open(c))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, tracking.Pixel, rec.Body.Bytes())
	assert.Empty(t, events.opens)
}

func TestTrackingHandler_Click_RedirectsToTarget(t *testing.T) {
	handler, tokens, events := setupTrackingHandler()
	c, rec := trackingRequest("/t/c/", tokens.IssueClick(15, "https://example.com/pricing?plan=pro"))

	require.NoError(t, handler.Click(c))

	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "https://example.com/pricing?plan=pro", rec.Header().Get(echo.HeaderLocation))
	assert.Equal(t, []uint{15}, events.clicks)
}

func TestTrackingHandler_Click_InvalidTokenGoesToSafeURL(t *testing.T) {
	handler, tokens, events := setupTrackingHandler()
	// an open token presented on the click endpoint
	c, rec := trackingRequest("/t/c/", tokens.IssueOpen(15))

	require.NoError(t, handler.Click(c))

	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "https://crm.acme.test/", rec.Header().Get(echo.HeaderLocation))
	assert.Empty(t, events.clicks)
}
