package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/HansOr04/LeteragoBackend/internal/helpers"
	"github.com/HansOr04/LeteragoBackend/internal/services"
)

const maxGenericFiles = 5

// UploadMiddleware parses multipart payloads for technique writes: up to
// one "image" part, one "document" part and five generic "files" parts.
// Each stored blob's metadata is attached to the context before the
// handler runs. When a later part fails validation, everything already
// stored in this request is released again.
func UploadMiddleware(attachments *services.AttachmentCoordinator) gin.HandlerFunc {
	return func(c *gin.Context) {
		contentType := c.ContentType()
		if contentType != "multipart/form-data" {
			c.Next()
			return
		}

		form, err := c.MultipartForm()
		if err != nil {
			helpers.RespondWithError(c, http.StatusBadRequest, "Invalid multipart payload.")
			c.Abort()
			return
		}

		var uploads []services.UploadedFile
		fail := func(err error) {
			attachments.ReleaseAll(uploads)
			helpers.RespondWithServiceError(c, err)
			c.Abort()
		}

		if files := form.File["image"]; len(files) > 0 {
			stored, err := attachments.Store(services.AttachmentImage, files[0])
			if err != nil {
				fail(err)
				return
			}
			uploads = append(uploads, *stored)
		}
		if files := form.File["document"]; len(files) > 0 {
			stored, err := attachments.Store(services.AttachmentDocument, files[0])
			if err != nil {
				fail(err)
				return
			}
			uploads = append(uploads, *stored)
		}
		generic := form.File["files"]
		if len(generic) > maxGenericFiles {
			fail(&services.ValidationError{Message: "at most five generic files are allowed"})
			return
		}
		for _, fileHeader := range generic {
			stored, err := attachments.Store(services.AttachmentFile, fileHeader)
			if err != nil {
				fail(err)
				return
			}
			uploads = append(uploads, *stored)
		}

		c.Set("uploads", uploads)
		c.Next()
	}
}

// GetUploads returns the files the upload middleware stored for this
// request.
func GetUploads(c *gin.Context) []services.UploadedFile {
	value, exists := c.Get("uploads")
	if !exists {
		return nil
	}
	uploads, _ := value.([]services.UploadedFile)
	return uploads
}
