package transcribe

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/linguaclip/backend/internal/models"
)

type fakeStore struct {
	item *models.MediaItem

	claimOK  bool
	claimErr error

	completedSegments []models.TranscriptSegment
	completedLanguage string
	completeCalled    bool
	completeErr       error

	failMessage string
	failCalled  bool
}

func (f *fakeStore) GetByID(ctx context.Context, id uuid.UUID) (*models.MediaItem, error) {
	if f.item == nil || f.item.ID != id {
		return nil, errors.New("no rows")
	}
	return f.item, nil
}

func (f *fakeStore) ClaimForTranscription(ctx context.Context, id uuid.UUID) (bool, error) {
	return f.claimOK, f.claimErr
}

func (f *fakeStore) CompleteTranscription(ctx context.Context, id uuid.UUID, segments []models.TranscriptSegment, language string, at time.Time) error {
	f.completeCalled = true
	f.completedSegments = segments
	f.completedLanguage = language
	return f.completeErr
}

func (f *fakeStore) FailTranscription(ctx context.Context, id uuid.UUID, message string) error {
	f.failCalled = true
	f.failMessage = message
	return nil
}

type fakeNotifier struct {
	statuses []string
}

func (f *fakeNotifier) PublishStatus(ctx context.Context, itemID uuid.UUID, status string) {
	f.statuses = append(f.statuses, status)
}

type fakeBackend struct {
	transcript *Transcript
	err        error
	calls      int
	lastLang   string
}

func (f *fakeBackend) Name() string { return "fake" }

func (f *fakeBackend) Transcribe(ctx context.Context, mediaPath, language string) (*Transcript, error) {
	f.calls++
	f.lastLang = language
	return f.transcript, f.err
}

func testItem(t *testing.T) *models.MediaItem {
	t.Helper()
	path := filepath.Join(t.TempDir(), "clip.mp4")
	if err := os.WriteFile(path, []byte("media"), 0o644); err != nil {
		t.Fatal(err)
	}
	return &models.MediaItem{
		ID:                  uuid.New(),
		Language:            "en",
		FilePath:            path,
		TranscriptionStatus: models.TranscriptionStatusPending,
	}
}

func TestProcessSuccess(t *testing.T) {
	item := testItem(t)
	store := &fakeStore{item: item, claimOK: true}
	notifier := &fakeNotifier{}
	backend := &fakeBackend{transcript: &Transcript{
		Language: "en",
		Segments: []models.TranscriptSegment{{Start: 0, End: 2.5, Text: "hello", TimeStr: "00:00:00"}},
	}}
	svc := NewService(store, backend, notifier, nil)

	if err := svc.Process(context.Background(), item.ID, ""); err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if !store.completeCalled {
		t.Fatal("CompleteTranscription was not called")
	}
	if store.failCalled {
		t.Fatal("FailTranscription called on success")
	}
	if len(store.completedSegments) != 1 || store.completedSegments[0].Text != "hello" {
		t.Fatalf("persisted segments = %+v", store.completedSegments)
	}
	if store.completedLanguage != "en" {
		t.Fatalf("persisted language = %q, want en", store.completedLanguage)
	}
	if backend.lastLang != "en" {
		t.Fatalf("backend language = %q, want item fallback en", backend.lastLang)
	}
	want := []string{models.TranscriptionStatusProcessing, models.TranscriptionStatusCompleted}
	if len(notifier.statuses) != 2 || notifier.statuses[0] != want[0] || notifier.statuses[1] != want[1] {
		t.Fatalf("published statuses = %v, want %v", notifier.statuses, want)
	}
}

// TestProcessEmptyTranscript checks that a backend returning zero
// segments still counts as completed.
func TestProcessEmptyTranscript(t *testing.T) {
	item := testItem(t)
	store := &fakeStore{item: item, claimOK: true}
	backend := &fakeBackend{transcript: &Transcript{Language: "en", Segments: []models.TranscriptSegment{}}}
	svc := NewService(store, backend, nil, nil)

	if err := svc.Process(context.Background(), item.ID, ""); err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if !store.completeCalled {
		t.Fatal("empty transcript must still complete the item")
	}
	if store.failCalled {
		t.Fatal("empty transcript wrongly marked failed")
	}
}

func TestProcessBackendFailure(t *testing.T) {
	item := testItem(t)
	store := &fakeStore{item: item, claimOK: true}
	notifier := &fakeNotifier{}
	backend := &fakeBackend{err: errors.New("model exploded")}
	svc := NewService(store, backend, notifier, nil)

	err := svc.Process(context.Background(), item.ID, "")
	if err == nil {
		t.Fatal("Process() with failing backend: want error, got nil")
	}
	if store.completeCalled {
		t.Fatal("CompleteTranscription called despite backend failure")
	}
	if !store.failCalled {
		t.Fatal("FailTranscription was not called")
	}
	if store.failMessage == "" {
		t.Fatal("failure message not persisted")
	}
	last := notifier.statuses[len(notifier.statuses)-1]
	if last != models.TranscriptionStatusFailed {
		t.Fatalf("last published status = %q, want failed", last)
	}
}

func TestProcessAlreadyClaimed(t *testing.T) {
	item := testItem(t)
	store := &fakeStore{item: item, claimOK: false}
	backend := &fakeBackend{}
	svc := NewService(store, backend, nil, nil)

	err := svc.Process(context.Background(), item.ID, "")
	if !errors.Is(err, ErrAlreadyProcessing) {
		t.Fatalf("Process() error = %v, want ErrAlreadyProcessing", err)
	}
	if backend.calls != 0 {
		t.Fatal("backend invoked despite losing the claim")
	}
	if store.failCalled {
		t.Fatal("losing the claim must not mark the item failed")
	}
}

func TestProcessUnknownItem(t *testing.T) {
	store := &fakeStore{}
	svc := NewService(store, &fakeBackend{}, nil, nil)

	err := svc.Process(context.Background(), uuid.New(), "")
	if !errors.Is(err, ErrItemNotFound) {
		t.Fatalf("Process() error = %v, want ErrItemNotFound", err)
	}
}

func TestProcessUnsupportedLanguage(t *testing.T) {
	item := testItem(t)
	store := &fakeStore{item: item, claimOK: true}
	backend := &fakeBackend{}
	svc := NewService(store, backend, nil, nil)

	err := svc.Process(context.Background(), item.ID, "xx")
	if !errors.Is(err, ErrUnsupportedLanguage) {
		t.Fatalf("Process() error = %v, want ErrUnsupportedLanguage", err)
	}
	if backend.calls != 0 {
		t.Fatal("backend invoked despite unsupported language")
	}
}

// TestProcessLanguageOverride checks the request language wins over the
// item's stored language.
func TestProcessLanguageOverride(t *testing.T) {
	item := testItem(t)
	store := &fakeStore{item: item, claimOK: true}
	backend := &fakeBackend{transcript: &Transcript{Language: "ja"}}
	svc := NewService(store, backend, nil, nil)

	if err := svc.Process(context.Background(), item.ID, "ja"); err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if backend.lastLang != "ja" {
		t.Fatalf("backend language = %q, want ja", backend.lastLang)
	}
}

func TestProcessMissingMediaFile(t *testing.T) {
	item := testItem(t)
	item.FilePath = filepath.Join(t.TempDir(), "gone.mp4")
	store := &fakeStore{item: item, claimOK: true}
	backend := &fakeBackend{}
	svc := NewService(store, backend, nil, nil)

	if err := svc.Process(context.Background(), item.ID, ""); err == nil {
		t.Fatal("Process() with missing media file: want error, got nil")
	}
	if !store.failCalled {
		t.Fatal("missing media file must mark the item failed")
	}
	if backend.calls != 0 {
		t.Fatal("backend invoked despite missing media file")
	}
}

func TestProcessPersistFailure(t *testing.T) {
	item := testItem(t)
	store := &fakeStore{item: item, claimOK: true, completeErr: errors.New("db down")}
	backend := &fakeBackend{transcript: &Transcript{Language: "en"}}
	svc := NewService(store, backend, nil, nil)

	if err := svc.Process(context.Background(), item.ID, ""); err == nil {
		t.Fatal("Process() with persist failure: want error, got nil")
	}
	if !store.failCalled {
		t.Fatal("persist failure must mark the item failed")
	}
}
