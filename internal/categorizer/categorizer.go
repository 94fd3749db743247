// Package categorizer assigns threads a category and sentiment from keyword
// rules, optionally overridden by an external classifier.
package categorizer

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/welldanyogia/webrana-crm-mail/internal/models"
	"github.com/welldanyogia/webrana-crm-mail/internal/repository"
)

// scanLimit bounds how much of subject and body the keyword rules read
const scanLimit = 2000

// ComplaintKeywords select the complaint category when found in an email
var ComplaintKeywords = []string{"complaint", "issue", "problem", "refund", "unhappy", "angry"}

// Label is the raw answer of an external classifier
type Label struct {
	Category  string
	Sentiment string
}

// Classifier is an external text classification capability
type Classifier interface {
	Classify(ctx context.Context, subject, body string) (Label, error)
}

// Result is the outcome of categorizing one email. OverrideErr holds the
// classifier failure when the rule based category was kept because of it.
type Result struct {
	Category    string
	Sentiment   *string
	Overridden  bool
	OverrideErr error
}

// Categorizer classifies emails and stores the result on their thread
type Categorizer struct {
	threads    repository.ThreadRepository
	classifier Classifier
	logger     *slog.Logger
}

// New creates a Categorizer. classifier may be nil to use keyword rules only.
func New(threads repository.ThreadRepository, classifier Classifier, logger *slog.Logger) *Categorizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Categorizer{
		threads:    threads,
		classifier: classifier,
		logger:     logger,
	}
}

// Categorize classifies email and updates its thread. The thread category is
// always written; the sentiment only when one was determined. The returned
// error is a persistence failure, classifier failures are reported in Result.
func (c *Categorizer) Categorize(ctx context.Context, email *models.Email, thread *models.Thread) (Result, error) {
	res := c.Classify(ctx, email, thread)
	if res.OverrideErr != nil {
		c.logger.Warn("External classification failed, keeping rule based category",
			slog.Uint64("email_id", uint64(email.ID)),
			slog.String("category", res.Category),
			slog.Any("error", res.OverrideErr),
		)
	}

	if err := c.threads.UpdateClassification(ctx, thread.ID, res.Category, res.Sentiment); err != nil {
		return res, fmt.Errorf("failed to store classification: %w", err)
	}
	thread.Category = res.Category
	if res.Sentiment != nil {
		thread.Sentiment = res.Sentiment
	}
	return res, nil
}

// Classify computes the category without persisting it. A CRM tag on the
// thread fixes the category; the classifier may still supply the sentiment.
func (c *Categorizer) Classify(ctx context.Context, email *models.Email, thread *models.Thread) Result {
	tagged := thread.TaggedCategory()
	res := Result{Category: tagged}
	if tagged == "" {
		res.Category = ByKeywords(email.Subject, email.BodyText)
	}

	if c.classifier == nil {
		return res
	}

	label, err := c.classifier.Classify(ctx, email.Subject, truncate(email.BodyText, scanLimit))
	if err != nil {
		res.OverrideErr = err
		return res
	}

	if s := NormalizeSentiment(label.Sentiment); s != "" {
		res.Sentiment = &s
	}
	if tagged != "" {
		return res
	}
	if cat := NormalizeCategory(label.Category); cat != "" {
		res.Category = cat
		res.Overridden = true
	} else if label.Category != "" {
		res.OverrideErr = fmt.Errorf("unrecognized category label %q", label.Category)
	}
	return res
}

// ByKeywords returns complaint when the text contains a complaint keyword,
// primary otherwise
func ByKeywords(subject, body string) string {
	text := strings.ToLower(truncate(subject+"\n"+body, scanLimit))
	for _, kw := range ComplaintKeywords {
		if strings.Contains(text, kw) {
			return models.CategoryComplaint
		}
	}
	return models.CategoryPrimary
}

// NormalizeCategory maps a provider label onto the category vocabulary, or ""
// when it cannot be mapped
func NormalizeCategory(label string) string {
	l := strings.ToLower(strings.TrimSpace(label))
	switch {
	case l == "":
		return ""
	case strings.Contains(l, "support"), strings.Contains(l, "customer"):
		return models.CategoryCustomer
	case strings.Contains(l, "complaint"):
		return models.CategoryComplaint
	case strings.Contains(l, "lead"):
		return models.CategoryLead
	case strings.Contains(l, "deal"):
		return models.CategoryDeal
	case strings.HasPrefix(l, "promo"):
		return models.CategoryPromotions
	case strings.Contains(l, "social"):
		return models.CategorySocial
	case strings.HasPrefix(l, "update"):
		return models.CategoryUpdates
	case l == models.CategoryPrimary, l == models.CategoryOther:
		return l
	}
	return ""
}

// NormalizeSentiment returns positive, neutral or negative, or "" for anything else
func NormalizeSentiment(s string) string {
	switch l := strings.ToLower(strings.TrimSpace(s)); l {
	case "positive", "neutral", "negative":
		return l
	}
	return ""
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	s = s[:n]
	for len(s) > 0 && !utf8.ValidString(s) {
		s = s[:len(s)-1]
	}
	return s
}
