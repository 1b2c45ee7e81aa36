package transcribe

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/linguaclip/backend/internal/models"
)

var (
	// ErrItemNotFound means the media item row does not exist.
	ErrItemNotFound = errors.New("media item not found")
	// ErrAlreadyProcessing means another run currently owns the item;
	// the claim step lost the compare-and-swap.
	ErrAlreadyProcessing = errors.New("transcription already in progress")
	// ErrUnsupportedLanguage means the requested language is not on the allow-list.
	ErrUnsupportedLanguage = errors.New("unsupported language code")
)

// Store is the persistence surface the service needs from the media repository.
type Store interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.MediaItem, error)
	// ClaimForTranscription atomically moves a non-processing item to
	// processing. Returns false when the item is already claimed.
	ClaimForTranscription(ctx context.Context, id uuid.UUID) (bool, error)
	// CompleteTranscription writes segments, language, timestamp and the
	// completed status in one statement.
	CompleteTranscription(ctx context.Context, id uuid.UUID, segments []models.TranscriptSegment, language string, at time.Time) error
	// FailTranscription marks the item failed with an error message,
	// leaving existing segments untouched.
	FailTranscription(ctx context.Context, id uuid.UUID, message string) error
}

// Notifier publishes status transitions for interested clients. May be nil.
type Notifier interface {
	PublishStatus(ctx context.Context, itemID uuid.UUID, status string)
}

// Service orchestrates one transcription run: claim the item, invoke the
// injected backend, persist the normalized result or the failure. The
// backend is chosen at construction time by deployment configuration.
type Service struct {
	store    Store
	backend  Backend
	notifier Notifier
	logger   *zap.Logger
}

// NewService creates a transcription service with an injected backend.
func NewService(store Store, backend Backend, notifier Notifier, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, backend: backend, notifier: notifier, logger: logger}
}

// Process runs the full pipeline for one media item. The returned error
// is for the caller to surface (synchronous trigger) or log and absorb
// (async worker); in either case the item has already been left in a
// terminal status. language overrides the item's stored language when
// non-empty.
func (s *Service) Process(ctx context.Context, itemID uuid.UUID, language string) error {
	item, err := s.store.GetByID(ctx, itemID)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrItemNotFound, itemID)
	}

	lang := language
	if lang == "" {
		lang = item.Language
	}
	if !LanguageSupported(lang) {
		return fmt.Errorf("%w: %q", ErrUnsupportedLanguage, lang)
	}

	claimed, err := s.store.ClaimForTranscription(ctx, itemID)
	if err != nil {
		return fmt.Errorf("claim item: %w", err)
	}
	if !claimed {
		return fmt.Errorf("%w: %s", ErrAlreadyProcessing, itemID)
	}
	s.publish(ctx, itemID, models.TranscriptionStatusProcessing)

	if item.FilePath == "" {
		return s.fail(ctx, itemID, fmt.Errorf("media item has no local file"))
	}
	if _, err := os.Stat(item.FilePath); err != nil {
		return s.fail(ctx, itemID, fmt.Errorf("media file missing: %w", err))
	}

	result, err := s.backend.Transcribe(ctx, item.FilePath, lang)
	if err != nil {
		return s.fail(ctx, itemID, fmt.Errorf("%s backend: %w", s.backend.Name(), err))
	}

	if err := s.store.CompleteTranscription(ctx, itemID, result.Segments, result.Language, time.Now()); err != nil {
		return s.fail(ctx, itemID, fmt.Errorf("persist transcript: %w", err))
	}
	s.publish(ctx, itemID, models.TranscriptionStatusCompleted)
	s.logger.Info("transcription completed",
		zap.String("item_id", itemID.String()),
		zap.String("backend", s.backend.Name()),
		zap.String("language", result.Language),
		zap.Int("segments", len(result.Segments)))
	return nil
}

// fail writes the terminal failed status and returns the original error.
func (s *Service) fail(ctx context.Context, itemID uuid.UUID, cause error) error {
	if err := s.store.FailTranscription(ctx, itemID, cause.Error()); err != nil {
		s.logger.Error("mark transcription failed", zap.String("item_id", itemID.String()), zap.Error(err))
	}
	s.publish(ctx, itemID, models.TranscriptionStatusFailed)
	s.logger.Warn("transcription failed", zap.String("item_id", itemID.String()), zap.Error(cause))
	return cause
}

func (s *Service) publish(ctx context.Context, itemID uuid.UUID, status string) {
	if s.notifier != nil {
		s.notifier.PublishStatus(ctx, itemID, status)
	}
}
