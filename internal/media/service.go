package media

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"

	"github.com/driftlabs/storefront-backend/pkg/config"
	"github.com/driftlabs/storefront-backend/pkg/db/models"
	"github.com/driftlabs/storefront-backend/pkg/enums"
	pkgerrors "github.com/driftlabs/storefront-backend/pkg/errors"
	"github.com/driftlabs/storefront-backend/pkg/logger"
	"github.com/driftlabs/storefront-backend/pkg/pagination"
)

type mediaRepository interface {
	Create(ctx context.Context, media *models.Media) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Media, error)
	ListByUser(ctx context.Context, userID uuid.UUID, params pagination.Params) ([]models.Media, string, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type storageClient interface {
	SignedURL(bucket, object, contentType string, expires time.Duration) (string, error)
	SignedReadURL(bucket, object string, expires time.Duration) (string, error)
	DeleteObject(ctx context.Context, bucket, object string) error
}

// PresignInput models an upload-URL request.
type PresignInput struct {
	Kind      enums.MediaKind
	MimeType  string
	FileName  string
	SizeBytes int64
}

// PresignOutput carries the signed PUT URL and the pending media row id.
type PresignOutput struct {
	MediaID      uuid.UUID `json:"mediaId"`
	ObjectKey    string    `json:"objectKey"`
	SignedPutURL string    `json:"signedPutUrl"`
	ContentType  string    `json:"contentType"`
	ExpiresAt    time.Time `json:"expiresAt"`
}

// RegisterURLInput records media hosted elsewhere; its kind is sniffed from
// the URL extension.
type RegisterURLInput struct {
	URL string
}

// Item is a media row with a short-lived read URL for object-backed rows.
type Item struct {
	models.Media
	ReadURL string `json:"readUrl,omitempty"`
}

// ListOutput is one cursor page of the user's uploads.
type ListOutput struct {
	Items      []Item `json:"items"`
	NextCursor string `json:"nextCursor,omitempty"`
}

// Service exposes upload, listing and deletion for user media.
type Service interface {
	PresignUpload(ctx context.Context, userID uuid.UUID, input PresignInput) (*PresignOutput, error)
	RegisterURL(ctx context.Context, userID uuid.UUID, input RegisterURLInput) (*models.Media, error)
	List(ctx context.Context, userID uuid.UUID, params pagination.Params) (*ListOutput, error)
	Delete(ctx context.Context, userID uuid.UUID, mediaID uuid.UUID) error
}

type service struct {
	repo        mediaRepository
	storage     storageClient
	logger      *logger.Logger
	bucket      string
	maxBytes    int64
	uploadTTL   time.Duration
	downloadTTL time.Duration
}

// NewService constructs a media service backed by the repo and object store.
func NewService(repo mediaRepository, storage storageClient, cfg config.StorageConfig, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("media repository required")
	}
	if storage == nil {
		return nil, fmt.Errorf("storage client required")
	}
	if cfg.BucketName == "" {
		return nil, fmt.Errorf("storage bucket required")
	}
	if cfg.UploadURLExpiry <= 0 || cfg.DownloadURLExpiry <= 0 {
		return nil, fmt.Errorf("url expiries must be positive")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		repo:        repo,
		storage:     storage,
		logger:      logg,
		bucket:      cfg.BucketName,
		maxBytes:    cfg.MaxUploadBytes,
		uploadTTL:   cfg.UploadURLExpiry,
		downloadTTL: cfg.DownloadURLExpiry,
	}, nil
}

var mimeTypesByKind = map[enums.MediaKind][]string{
	enums.MediaKindImage:    {"image/png", "image/jpeg", "image/webp", "image/gif"},
	enums.MediaKindVideo:    {"video/mp4", "video/webm", "video/quicktime"},
	enums.MediaKindDocument: {"application/pdf"},
	// MediaKindOther is intentionally absent to allow any mime type.
}

func (s *service) PresignUpload(ctx context.Context, userID uuid.UUID, input PresignInput) (*PresignOutput, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user identity missing")
	}
	if input.Kind == "" || !input.Kind.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid media kind")
	}

	fileName := strings.TrimSpace(input.FileName)
	if fileName == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "fileName is required")
	}
	if input.SizeBytes <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "sizeBytes must be positive")
	}
	if s.maxBytes > 0 && input.SizeBytes > s.maxBytes {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("sizeBytes must be at most %d", s.maxBytes))
	}

	mimeType := strings.TrimSpace(input.MimeType)
	if mimeType == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "mimeType is required")
	}
	if !isAllowedMime(input.Kind, mimeType) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "mimeType not allowed for media kind")
	}

	mediaID := uuid.New()
	objectKey := buildObjectKey(input.Kind, mediaID, fileName)

	row := &models.Media{
		ID:        mediaID,
		UserID:    userID,
		Kind:      input.Kind,
		ObjectKey: objectKey,
		FileName:  fileName,
		MimeType:  mimeType,
		SizeBytes: input.SizeBytes,
	}
	if err := s.repo.Create(ctx, row); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist media row")
	}

	expiresAt := time.Now().Add(s.uploadTTL)
	signedURL, err := s.storage.SignedURL(s.bucket, objectKey, mimeType, s.uploadTTL)
	if err != nil {
		_ = s.repo.Delete(ctx, mediaID)
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sign upload url")
	}

	return &PresignOutput{
		MediaID:      mediaID,
		ObjectKey:    objectKey,
		SignedPutURL: signedURL,
		ContentType:  mimeType,
		ExpiresAt:    expiresAt,
	}, nil
}

func (s *service) RegisterURL(ctx context.Context, userID uuid.UUID, input RegisterURLInput) (*models.Media, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user identity missing")
	}
	raw := strings.TrimSpace(input.URL)
	if raw == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "url is required")
	}
	parsed, err := url.Parse(raw)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "url must be absolute http(s)")
	}

	fileName := path.Base(parsed.Path)
	if fileName == "." || fileName == "/" {
		fileName = ""
	}
	kind := kindFromExtension(fileName)

	row := &models.Media{
		ID:        uuid.New(),
		UserID:    userID,
		Kind:      kind,
		URL:       &raw,
		ObjectKey: "external/" + uuid.NewString(),
		FileName:  fileName,
		MimeType:  "application/octet-stream",
	}
	if err := s.repo.Create(ctx, row); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist media row")
	}
	return row, nil
}

func (s *service) List(ctx context.Context, userID uuid.UUID, params pagination.Params) (*ListOutput, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user identity missing")
	}

	rows, nextCursor, err := s.repo.ListByUser(ctx, userID, params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list media")
	}

	items := make([]Item, 0, len(rows))
	for _, row := range rows {
		item := Item{Media: row}
		switch {
		case row.URL != nil:
			item.ReadURL = *row.URL
		default:
			signed, signErr := s.storage.SignedReadURL(s.bucket, row.ObjectKey, s.downloadTTL)
			if signErr != nil {
				s.logger.Error(s.logger.WithField(ctx, "media_id", row.ID.String()),
					"sign read url failed", signErr)
			} else {
				item.ReadURL = signed
			}
		}
		items = append(items, item)
	}
	return &ListOutput{Items: items, NextCursor: nextCursor}, nil
}

// Delete removes the row and, for object-backed media, the stored object.
// Rows owned by someone else are forbidden, not hidden.
func (s *service) Delete(ctx context.Context, userID uuid.UUID, mediaID uuid.UUID) error {
	if userID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if mediaID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "media id is required")
	}

	row, err := s.repo.FindByID(ctx, mediaID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup media")
	}
	if row == nil {
		return pkgerrors.New(pkgerrors.CodeNotFound, "media not found")
	}
	if row.UserID != userID {
		return pkgerrors.New(pkgerrors.CodeForbidden, "media belongs to another user")
	}

	if row.URL == nil {
		if err := s.storage.DeleteObject(ctx, s.bucket, row.ObjectKey); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete stored object")
		}
	}
	if err := s.repo.Delete(ctx, mediaID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete media row")
	}
	return nil
}

func isAllowedMime(kind enums.MediaKind, mimeType string) bool {
	if allowed, ok := mimeTypesByKind[kind]; ok && len(allowed) > 0 {
		for _, candidate := range allowed {
			if strings.EqualFold(candidate, mimeType) {
				return true
			}
		}
		return false
	}
	return true
}

var kindsByExtension = map[string]enums.MediaKind{
	".png":  enums.MediaKindImage,
	".jpg":  enums.MediaKindImage,
	".jpeg": enums.MediaKindImage,
	".webp": enums.MediaKindImage,
	".gif":  enums.MediaKindImage,
	".mp4":  enums.MediaKindVideo,
	".webm": enums.MediaKindVideo,
	".mov":  enums.MediaKindVideo,
	".pdf":  enums.MediaKindDocument,
}

func kindFromExtension(fileName string) enums.MediaKind {
	ext := strings.ToLower(path.Ext(fileName))
	if kind, ok := kindsByExtension[ext]; ok {
		return kind
	}
	return enums.MediaKindOther
}

func buildObjectKey(kind enums.MediaKind, id uuid.UUID, fileName string) string {
	cleanName := sanitizeFileName(fileName)
	if cleanName == "" {
		cleanName = id.String()
	}
	return fmt.Sprintf("media/%s/%s/%s", kind, id.String(), cleanName)
}

func sanitizeFileName(name string) string {
	if name == "" {
		return ""
	}
	clean := path.Base(strings.TrimSpace(name))
	if clean == "" {
		return ""
	}
	var b strings.Builder
	b.Grow(len(clean))
	for _, r := range clean {
		switch {
		case r == '/' || r == '\\' || unicode.IsControl(r):
			continue
		case unicode.IsSpace(r):
			b.WriteRune('-')
		default:
			b.WriteRune(r)
		}
	}
	return strings.Trim(b.String(), "-_.")
}
