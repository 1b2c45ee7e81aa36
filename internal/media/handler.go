package media

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/linguaclip/backend/internal/middleware"
	"github.com/linguaclip/backend/internal/models"
	"github.com/linguaclip/backend/internal/transcribe"
	"github.com/linguaclip/backend/pkg/queue"
	"github.com/linguaclip/backend/pkg/response"
	"github.com/linguaclip/backend/pkg/storage"
)

// Handler handles media item HTTP endpoints.
type Handler struct {
	repo     *Repository
	queue    *queue.Queue
	service  *transcribe.Service
	s3       *storage.S3 // optional archive; nil disables download URLs
	mediaDir string
	logger   *zap.Logger
}

// NewHandler creates a media handler.
func NewHandler(repo *Repository, q *queue.Queue, service *transcribe.Service, s3 *storage.S3, mediaDir string, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{repo: repo, queue: q, service: service, s3: s3, mediaDir: mediaDir, logger: logger}
}

// List handles GET /media. Returns the caller's media items.
func (h *Handler) List(c *gin.Context) {
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	list, err := h.repo.ListByOwner(c.Request.Context(), userID)
	if err != nil {
		h.logger.Error("list media failed", zap.Error(err), zap.String("user_id", userID.String()))
		response.Internal(c, "failed to list media items")
		return
	}
	response.OK(c, list)
}

// ListAll handles GET /admin/media. Admin-only view across all owners,
// optionally filtered with ?status=.
func (h *Handler) ListAll(c *gin.Context) {
	status := c.Query("status")
	switch status {
	case "", models.TranscriptionStatusPending, models.TranscriptionStatusProcessing,
		models.TranscriptionStatusCompleted, models.TranscriptionStatusFailed:
	default:
		response.BadRequest(c, "unknown transcription status")
		return
	}
	list, err := h.repo.ListByStatus(c.Request.Context(), status)
	if err != nil {
		h.logger.Error("admin list media failed", zap.Error(err))
		response.Internal(c, "failed to list media items")
		return
	}
	response.OK(c, list)
}

// Create handles POST /media. Accepts a multipart upload (field "file")
// with title/description/source_url/language form fields; the file is
// stored under the local media directory and optionally archived to S3.
func (h *Handler) Create(c *gin.Context) {
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)

	title := strings.TrimSpace(c.PostForm("title"))
	if title == "" {
		response.BadRequest(c, "title is required")
		return
	}
	language := c.PostForm("language")
	if !transcribe.LanguageSupported(language) {
		response.BadRequest(c, "unsupported language code")
		return
	}

	file, err := c.FormFile("file")
	if err != nil {
		response.BadRequest(c, "media file is required")
		return
	}

	itemID := uuid.New()
	dir := filepath.Join(h.mediaDir, userID.String())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		h.logger.Error("create media dir failed", zap.Error(err), zap.String("dir", dir))
		response.Internal(c, "failed to store media file")
		return
	}
	dst := filepath.Join(dir, itemID.String()+filepath.Ext(file.Filename))
	if err := c.SaveUploadedFile(file, dst); err != nil {
		h.logger.Error("save media file failed", zap.Error(err), zap.String("path", dst))
		response.Internal(c, "failed to store media file")
		return
	}

	item := &models.MediaItem{
		OwnerID:             userID,
		Title:               title,
		Description:         c.PostForm("description"),
		SourceURL:           c.PostForm("source_url"),
		FilePath:            dst,
		Language:            language,
		TranscriptionStatus: models.TranscriptionStatusPending,
	}
	if err := h.repo.Create(c.Request.Context(), item); err != nil {
		_ = os.Remove(dst)
		h.logger.Error("create media item failed", zap.Error(err))
		response.Internal(c, "failed to create media item")
		return
	}

	if h.s3 != nil {
		key := storage.MediaKey(userID.String(), item.ID.String(), filepath.Ext(file.Filename))
		if err := h.archiveToS3(c, dst, key, file.Header.Get("Content-Type")); err != nil {
			h.logger.Warn("media archive to S3 failed", zap.Error(err), zap.String("item_id", item.ID.String()))
		} else if err := h.repo.UpdateS3Key(c.Request.Context(), item.ID, key); err != nil {
			h.logger.Warn("record media s3 key failed", zap.Error(err))
		} else {
			item.S3Key = key
		}
	}

	response.Created(c, item)
}

func (h *Handler) archiveToS3(c *gin.Context, path, key, contentType string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return err
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	_, err = h.s3.Upload(c.Request.Context(), h.s3.MediaBucket(), key, contentType, f, info.Size())
	return err
}

// GetByID handles GET /media/:id.
func (h *Handler) GetByID(c *gin.Context) {
	item, ok := h.ownedItem(c)
	if !ok {
		return
	}
	response.OK(c, item)
}

// Delete handles DELETE /media/:id. Removes the row, the local file and
// the S3 archive object when present.
func (h *Handler) Delete(c *gin.Context) {
	item, ok := h.ownedItem(c)
	if !ok {
		return
	}
	if err := h.repo.Delete(c.Request.Context(), item.ID); err != nil {
		h.logger.Error("delete media item failed", zap.Error(err), zap.String("item_id", item.ID.String()))
		response.Internal(c, "failed to delete media item")
		return
	}
	if item.FilePath != "" {
		_ = os.Remove(item.FilePath)
	}
	if h.s3 != nil && item.S3Key != "" {
		if err := h.s3.DeleteMedia(c.Request.Context(), item.S3Key); err != nil {
			h.logger.Warn("delete media archive failed", zap.Error(err), zap.String("s3_key", item.S3Key))
		}
	}
	response.NoContent(c)
}

// Transcribe handles POST /media/:id/transcribe. With ?sync=true the
// pipeline runs inline and a backend failure surfaces in the response;
// otherwise the job is enqueued and 202-style accepted data is returned.
func (h *Handler) Transcribe(c *gin.Context) {
	item, ok := h.ownedItem(c)
	if !ok {
		return
	}
	language := c.Query("language")
	if !transcribe.LanguageSupported(language) {
		response.BadRequest(c, "unsupported language code")
		return
	}

	if c.Query("sync") == "true" {
		if err := h.service.Process(c.Request.Context(), item.ID, language); err != nil {
			switch {
			case errors.Is(err, transcribe.ErrAlreadyProcessing):
				response.Conflict(c, err.Error())
			case errors.Is(err, transcribe.ErrUnsupportedLanguage):
				response.BadRequest(c, err.Error())
			default:
				response.Internal(c, fmt.Sprintf("transcription failed: %v", err))
			}
			return
		}
		updated, err := h.repo.GetByID(c.Request.Context(), item.ID)
		if err != nil {
			response.Internal(c, "failed to load transcript")
			return
		}
		response.OK(c, updated)
		return
	}

	if item.TranscriptionStatus == models.TranscriptionStatusProcessing {
		response.Conflict(c, "transcription already in progress")
		return
	}
	if err := h.queue.EnqueueTranscription(c.Request.Context(), queue.TranscriptionPayload{
		MediaItemID: item.ID,
		Language:    language,
	}); err != nil {
		h.logger.Error("enqueue transcription failed", zap.Error(err), zap.String("item_id", item.ID.String()))
		response.Internal(c, "failed to enqueue transcription")
		return
	}
	response.OK(c, gin.H{"item_id": item.ID, "status": models.TranscriptionStatusPending})
}

// Retry handles POST /media/:id/transcribe/retry. Only a terminal item
// can be retriggered; the reset to pending precedes a fresh enqueue.
func (h *Handler) Retry(c *gin.Context) {
	item, ok := h.ownedItem(c)
	if !ok {
		return
	}
	reset, err := h.repo.ResetForRetry(c.Request.Context(), item.ID)
	if err != nil {
		h.logger.Error("reset for retry failed", zap.Error(err), zap.String("item_id", item.ID.String()))
		response.Internal(c, "failed to retry transcription")
		return
	}
	if !reset {
		response.Conflict(c, "item is not in a terminal status")
		return
	}
	if err := h.queue.EnqueueTranscription(c.Request.Context(), queue.TranscriptionPayload{MediaItemID: item.ID}); err != nil {
		h.logger.Error("enqueue retry failed", zap.Error(err), zap.String("item_id", item.ID.String()))
		response.Internal(c, "failed to enqueue transcription")
		return
	}
	response.OK(c, gin.H{"item_id": item.ID, "status": models.TranscriptionStatusPending})
}

// Transcript handles GET /media/:id/transcript.
func (h *Handler) Transcript(c *gin.Context) {
	item, ok := h.ownedItem(c)
	if !ok {
		return
	}
	if item.TranscriptionStatus != models.TranscriptionStatusCompleted {
		response.BadRequest(c, "transcript not available: "+item.TranscriptionStatus)
		return
	}
	response.OK(c, gin.H{
		"item_id":        item.ID,
		"language":       item.TranscriptionLang,
		"segments":       item.Segments,
		"transcribed_at": item.TranscribedAt,
	})
}

// DownloadURL handles GET /media/:id/download-url. Returns a presigned
// S3 URL for the archived media object.
func (h *Handler) DownloadURL(c *gin.Context) {
	item, ok := h.ownedItem(c)
	if !ok {
		return
	}
	if h.s3 == nil {
		response.ServiceUnavailable(c, "media archive not configured")
		return
	}
	if item.S3Key == "" {
		response.NotFound(c, "media item is not archived")
		return
	}
	expire := h.s3.PresignExpire()
	url, err := h.s3.GeneratePresignedDownloadURL(c.Request.Context(), h.s3.MediaBucket(), item.S3Key, expire)
	if err != nil {
		h.logger.Error("presign media download failed", zap.Error(err), zap.String("item_id", item.ID.String()))
		response.Internal(c, "failed to generate download URL")
		return
	}
	response.OK(c, gin.H{"download_url": url, "expires_in": int(expire.Seconds())})
}

// ownedItem parses :id, loads the item and enforces ownership (admins
// may access any item). Writes the error response on failure.
func (h *Handler) ownedItem(c *gin.Context) (*models.MediaItem, bool) {
	itemID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid media item id")
		return nil, false
	}
	item, err := h.repo.GetByID(c.Request.Context(), itemID)
	if err != nil {
		response.NotFound(c, "media item not found")
		return nil, false
	}
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	role, _ := c.Get(middleware.ContextUserRole)
	if item.OwnerID != userID && role != string(models.RoleAdmin) {
		response.Forbidden(c, "not authorized to access this media item")
		return nil, false
	}
	return item, true
}
