package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/driftlabs/storefront-backend/pkg/enums"
)

// Media captures metadata for uploaded objects.
type Media struct {
	ID        uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	UserID    uuid.UUID       `gorm:"column:user_id;type:uuid;not null;index" json:"userId"`
	Kind      enums.MediaKind `gorm:"column:kind;not null" json:"kind"`
	URL       *string         `gorm:"column:url" json:"url,omitempty"`
	ObjectKey string          `gorm:"column:object_key;not null;uniqueIndex:media_object_key_key" json:"objectKey"`
	FileName  string          `gorm:"column:file_name;not null" json:"fileName"`
	MimeType  string          `gorm:"column:mime_type;not null" json:"mimeType"`
	SizeBytes int64           `gorm:"column:size_bytes;not null" json:"sizeBytes"`
	CreatedAt time.Time       `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
}
