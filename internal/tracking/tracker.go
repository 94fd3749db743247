package tracking

import (
	"context"
	"encoding/base64"
	"errors"
	"log/slog"
	"time"

	"github.com/welldanyogia/webrana-crm-mail/internal/logger"
	"github.com/welldanyogia/webrana-crm-mail/internal/metrics"
	"github.com/welldanyogia/webrana-crm-mail/internal/repository"
)

// Pixel is a transparent 1x1 GIF
var Pixel, _ = base64.StdEncoding.DecodeString("R0lGODlhAQABAIABAP///wAAACwAAAAAAQABAAACAkQBADs=")

// Recorder stores tracking events on emails
type Recorder interface {
	RecordOpen(ctx context.Context, id uint, at time.Time) error
	RecordClick(ctx context.Context, id uint, at time.Time) error
}

// Tracker resolves tokens arriving on the public endpoints and records the
// events they carry
type Tracker struct {
	tokens   *Tokens
	recorder Recorder
	safeURL  string
	logger   *slog.Logger
	security *logger.SecurityLogger
	metrics  *metrics.Metrics
	now      func() time.Time
}

// NewTracker creates a Tracker redirecting unusable clicks to safeURL
func NewTracker(tokens *Tokens, recorder Recorder, safeURL string, log *slog.Logger, security *logger.SecurityLogger, m *metrics.Metrics) *Tracker {
	if log == nil {
		log = slog.Default()
	}
	return &Tracker{
		tokens:   tokens,
		recorder: recorder,
		safeURL:  safeURL,
		logger:   log,
		security: security,
		metrics:  m,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Open records an open for token. Only a valid open token mutates anything.
func (t *Tracker) Open(ctx context.Context, token, clientIP string) Outcome {
	out := t.tokens.Resolve(token)
	if !out.Valid || out.Kind != KindOpen {
		t.reject(KindOpen, clientIP)
		return Outcome{}
	}

	if err := t.recorder.RecordOpen(ctx, out.EmailID, t.now()); err != nil {
		t.logger.Warn("Failed to record open",
			slog.Uint64("email_id", uint64(out.EmailID)),
			slog.Any("error", err),
		)
		t.metrics.TrackingEvent(string(KindOpen), false)
		return Outcome{}
	}
	t.metrics.TrackingEvent(string(KindOpen), true)
	return out
}

// Click records a click for token and returns where to redirect: the original
// target, or the safe default when the token or its target is unusable
func (t *Tracker) Click(ctx context.Context, token, clientIP string) (string, Outcome) {
	out := t.tokens.Resolve(token)
	if !out.Valid || out.Kind != KindClick || !IsWebURL(out.URL) {
		t.reject(KindClick, clientIP)
		return t.safeURL, Outcome{}
	}

	if err := t.recorder.RecordClick(ctx, out.EmailID, t.now()); err != nil {
		t.logger.Warn("Failed to record click",
			slog.Uint64("email_id", uint64(out.EmailID)),
			slog.Any("error", err),
		)
		t.metrics.TrackingEvent(string(KindClick), false)
		if errors.Is(err, repository.ErrNotFound) {
			return t.safeURL, Outcome{}
		}
		// the link itself is genuine, losing the count must not break it
		return out.URL, out
	}
	t.metrics.TrackingEvent(string(KindClick), true)
	return out.URL, out
}

func (t *Tracker) reject(kind Kind, clientIP string) {
	t.metrics.TrackingEvent(string(kind), false)
	if t.security != nil {
		t.security.InvalidTrackingToken(clientIP, string(kind))
	}
}
