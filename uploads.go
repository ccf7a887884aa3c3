package main

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	"github.com/gin-gonic/gin"

	"bitbucket.org/mmdatafocus/conformity_backend/config"
	"bitbucket.org/mmdatafocus/conformity_backend/models"
	"bitbucket.org/mmdatafocus/conformity_backend/utils"
	"bitbucket.org/mmdatafocus/conformity_backend/workflow"
)

const maxUploadSizeBytes int64 = 10 * 1024 * 1024

const signedURLTTL = 15 * time.Minute

var imageMimeTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
}

var attachmentMimeTypes = map[string]bool{
	"application/pdf":    true,
	"application/msword": true,
	"application/vnd.ms-excel": true,
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": true,
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":       true,
}

func allowedUploadMime(mime string) bool {
	return imageMimeTypes[mime] || attachmentMimeTypes[mime]
}

// deviationDocumentUploadHandler stores a document (nonconformity photo,
// signed 8D report, lab printout) on a deviation. Binary goes to GCS, images
// get a thumbnail, the metadata row keeps the object keys. Thumbnail
// generation is best effort; a broken image never fails the upload.
func deviationDocumentUploadHandler(engine *workflow.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		logger := config.GetLogger()
		ctx := c.Request.Context()

		if isAuditor, _ := utils.GetIsAuditorFromContext(ctx); isAuditor {
			c.JSON(http.StatusForbidden, gin.H{"error": utils.ErrorReadOnlySession.Error()})
			return
		}
		deviationId, err := strconv.Atoi(c.Param("id"))
		if err != nil || deviationId <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
			return
		}
		d, err := engine.GetDeviation(ctx, deviationId)
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "record not found"})
			return
		}

		fileHeader, err := c.FormFile("file")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
			return
		}
		if fileHeader.Size > maxUploadSizeBytes {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file exceeds 10 MiB"})
			return
		}
		mime := fileHeader.Header.Get("Content-Type")
		if !allowedUploadMime(mime) {
			c.JSON(http.StatusUnsupportedMediaType, gin.H{"error": "unsupported file type"})
			return
		}

		src, err := fileHeader.Open()
		if err != nil {
			config.LogError(logger, "uploads.go", "deviationDocumentUploadHandler", "open upload", fileHeader.Filename, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}
		defer src.Close()

		raw, err := io.ReadAll(io.LimitReader(src, maxUploadSizeBytes+1))
		if err != nil {
			config.LogError(logger, "uploads.go", "deviationDocumentUploadHandler", "read upload", fileHeader.Filename, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}

		objectKey := fmt.Sprintf("%s/deviations/%d/%s%s",
			d.BusinessId, d.ID, utils.GenerateUniqueFilename(),
			strings.ToLower(filepath.Ext(fileHeader.Filename)))
		if err := utils.UploadObjectToGCS(ctx, objectKey, mime, bytes.NewReader(raw)); err != nil {
			config.LogError(logger, "uploads.go", "deviationDocumentUploadHandler", "upload to gcs", objectKey, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "upload failed"})
			return
		}

		var thumbnailKey *string
		if imageMimeTypes[mime] {
			if img, decErr := imaging.Decode(bytes.NewReader(raw)); decErr == nil {
				thumb := imaging.Thumbnail(img, 240, 240, imaging.Lanczos)
				var buf bytes.Buffer
				if encErr := imaging.Encode(&buf, thumb, imaging.JPEG); encErr == nil {
					key := objectKey + "_thumb.jpg"
					if upErr := utils.UploadObjectToGCS(ctx, key, "image/jpeg", &buf); upErr == nil {
						thumbnailKey = &key
					}
				}
			}
		}

		uploadedBy, _ := utils.GetUserNameFromContext(ctx)
		doc := models.DeviationDocument{
			BusinessId:         d.BusinessId,
			DeviationId:        d.ID,
			FileName:           fileHeader.Filename,
			MimeType:           mime,
			SizeBytes:          fileHeader.Size,
			ObjectKey:          objectKey,
			ThumbnailObjectKey: thumbnailKey,
			UploadedBy:         uploadedBy,
		}
		if err := config.GetDB().WithContext(ctx).Create(&doc).Error; err != nil {
			config.LogError(logger, "uploads.go", "deviationDocumentUploadHandler", "insert document row", objectKey, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}

		url, _ := utils.SignedObjectURL(ctx, objectKey, signedURLTTL)
		c.JSON(http.StatusCreated, gin.H{"document": doc, "url": url})
	}
}

// deviationDocumentURLHandler hands out short-lived signed URLs; the bucket
// itself is never public.
func deviationDocumentURLHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		docId, err := strconv.Atoi(c.Param("docId"))
		if err != nil || docId <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid docId"})
			return
		}
		businessId, _ := utils.GetBusinessIdFromContext(ctx)

		var doc models.DeviationDocument
		if err := config.GetDB().WithContext(ctx).
			Where("id = ? AND business_id = ?", docId, businessId).
			First(&doc).Error; err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "record not found"})
			return
		}

		url, err := utils.SignedObjectURL(ctx, doc.ObjectKey, signedURLTTL)
		if err != nil {
			config.LogError(config.GetLogger(), "uploads.go", "deviationDocumentURLHandler", "sign url", doc.ObjectKey, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}
		resp := gin.H{"url": url, "file_name": doc.FileName, "mime_type": doc.MimeType}
		if doc.ThumbnailObjectKey != nil {
			if thumbURL, thumbErr := utils.SignedObjectURL(ctx, *doc.ThumbnailObjectKey, signedURLTTL); thumbErr == nil {
				resp["thumbnail_url"] = thumbURL
			}
		}
		c.JSON(http.StatusOK, resp)
	}
}

func deviationDocumentDeleteHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		if isAuditor, _ := utils.GetIsAuditorFromContext(ctx); isAuditor {
			c.JSON(http.StatusForbidden, gin.H{"error": utils.ErrorReadOnlySession.Error()})
			return
		}
		docId, err := strconv.Atoi(c.Param("docId"))
		if err != nil || docId <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid docId"})
			return
		}
		businessId, _ := utils.GetBusinessIdFromContext(ctx)

		var doc models.DeviationDocument
		db := config.GetDB().WithContext(ctx)
		if err := db.Where("id = ? AND business_id = ?", docId, businessId).First(&doc).Error; err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "record not found"})
			return
		}

		// Row first, then objects; an orphaned object is harmless, a row
		// pointing at nothing is not.
		if err := db.Delete(&doc).Error; err != nil {
			config.LogError(config.GetLogger(), "uploads.go", "deviationDocumentDeleteHandler", "delete row", docId, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}
		_ = utils.DeleteObjectFromGCS(ctx, doc.ObjectKey)
		if doc.ThumbnailObjectKey != nil {
			_ = utils.DeleteObjectFromGCS(ctx, *doc.ThumbnailObjectKey)
		}
		c.Status(http.StatusNoContent)
	}
}
