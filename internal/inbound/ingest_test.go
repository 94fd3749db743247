package inbound

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/welldanyogia/webrana-crm-mail/internal/categorizer"
	"github.com/welldanyogia/webrana-crm-mail/internal/models"
	"github.com/welldanyogia/webrana-crm-mail/internal/repository"
	"github.com/welldanyogia/webrana-crm-mail/internal/storage"
	"github.com/welldanyogia/webrana-crm-mail/internal/testutil"
)

type failingClassifier struct{ mock.Mock }

func (f *failingClassifier) Classify(ctx context.Context, subject, body string) (categorizer.Label, error) {
	args := f.Called(ctx, subject, body)
	return args.Get(0).(categorizer.Label), args.Error(1)
}

func newIngester(t *testing.T, classifier categorizer.Classifier) (*Ingester, *models.MailboxAccount, string) {
	t.Helper()
	db := testutil.NewDB(t)
	dir := t.TempDir()
	files, err := storage.NewLocalStorage(dir)
	require.NoError(t, err)

	account := testutil.SeedAccount(t, db, 1, 10, "owner@acme.test")
	ing := NewIngester(&IngesterConfig{
		Emails:      repository.NewEmailRepository(db),
		Storage:     files,
		Categorizer: categorizer.New(repository.NewThreadRepository(db), classifier, nil),
	})
	return ing, account, dir
}

func TestIngest_DuplicateMessageID(t *testing.T) {
	ing, account, _ := newIngester(t, nil)
	raw := []byte(message("<dup@example.com>", "Hi", "hello"))

	first, err := ing.Ingest(context.Background(), account, raw, "")
	require.NoError(t, err)
	assert.NotZero(t, first.ID)

	_, err = ing.Ingest(context.Background(), account, raw, "")
	assert.True(t, errors.Is(err, ErrAlreadyIngested))
}

func TestIngest_GeneratesIDWhenNoneKnown(t *testing.T) {
	ing, account, _ := newIngester(t, nil)

	email, err := ing.Ingest(context.Background(), account, []byte(message("", "Hi", "hello")), "")
	require.NoError(t, err)

	assert.True(t, strings.HasSuffix(email.MessageID, "@acme.test>"))
}

func TestIngest_ClassifierFailureKeepsRuleCategory(t *testing.T) {
	classifier := &failingClassifier{}
	classifier.On("Classify", mock.Anything, mock.Anything, mock.Anything).
		Return(categorizer.Label{}, errors.New("upstream timeout"))
	ing, account, _ := newIngester(t, classifier)

	email, err := ing.Ingest(context.Background(), account, []byte(message("<c1@example.com>", "Problem with order", "it broke")), "")
	require.NoError(t, err)

	assert.NotZero(t, email.ID)
	classifier.AssertExpectations(t)
}

func TestIngest_BlockedAttachmentSkipped(t *testing.T) {
	ing, account, dir := newIngester(t, nil)
	raw := strings.Replace(withAttachment, "contract.pdf", "setup.exe", 1)

	email, err := ing.Ingest(context.Background(), account, []byte(raw), "")
	require.NoError(t, err)

	assert.False(t, email.HasAttachments)
	var files []string
	_ = filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err == nil && !info.IsDir() {
			files = append(files, path)
		}
		return nil
	})
	assert.Empty(t, files)
}

func TestParticipants(t *testing.T) {
	assert.Equal(t,
		[]string{"ana@example.com", "bo@example.com"},
		participants("ana@example.com", []string{"ANA@example.com", "bo@example.com", " "}))
}
