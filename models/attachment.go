package models

import "time"

// DeviationDocument is an attachment on a deviation: nonconformity photos,
// signed 8D reports, lab printouts. Binary content lives in GCS; this row is
// the metadata. Access always goes through signed URLs.
type DeviationDocument struct {
	ID          int    `gorm:"primary_key" json:"id"`
	BusinessId  string `gorm:"size:64;not null;index" json:"business_id"`
	DeviationId int    `gorm:"not null;index" json:"deviation_id"`

	FileName  string `gorm:"size:255;not null" json:"file_name"`
	MimeType  string `gorm:"size:100;not null" json:"mime_type"`
	SizeBytes int64  `gorm:"not null" json:"size_bytes"`

	ObjectKey          string  `gorm:"size:512;not null" json:"object_key"`
	ThumbnailObjectKey *string `gorm:"size:512" json:"thumbnail_object_key"`

	UploadedBy string    `gorm:"size:100" json:"uploaded_by"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
}
