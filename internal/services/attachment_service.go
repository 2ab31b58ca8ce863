package services

import (
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

type AttachmentKind string

const (
	AttachmentImage    AttachmentKind = "image"
	AttachmentDocument AttachmentKind = "document"
	AttachmentFile     AttachmentKind = "file"
)

// UploadedFile is the metadata the upload middleware attaches to the
// request context for every stored multipart part.
type UploadedFile struct {
	Field        string `json:"field"`
	OriginalName string `json:"original_name"`
	Path         string `json:"path"`
	Size         int64  `json:"size"`
	MIME         string `json:"mime"`
}

type uploadRules struct {
	maxSizeBytes int64
	allowedMIME  []string
	bucket       string
}

var kindRules = map[AttachmentKind]uploadRules{
	AttachmentImage: {
		maxSizeBytes: 5 * 1024 * 1024,
		allowedMIME:  []string{"image/jpeg", "image/png", "image/gif", "image/webp"},
		bucket:       "images",
	},
	AttachmentDocument: {
		maxSizeBytes: 10 * 1024 * 1024,
		allowedMIME: []string{
			"application/pdf",
			"application/msword",
			"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
			"text/plain",
		},
		bucket: "documents",
	},
	AttachmentFile: {
		maxSizeBytes: 10 * 1024 * 1024,
		allowedMIME:  nil, // any
		bucket:       "files",
	},
}

// AttachmentCoordinator mediates between the catalog and the local blob
// store. It never lets a failed cleanup fail the surrounding operation.
type AttachmentCoordinator struct {
	BasePath string
}

func NewAttachmentCoordinator(basePath string) *AttachmentCoordinator {
	if basePath == "" {
		basePath = "./uploads"
	}
	return &AttachmentCoordinator{BasePath: basePath}
}

// Store writes one multipart part into the kind's bucket and returns its
// metadata. The stored filename is a fresh uuid; the original name only
// survives in the returned metadata.
func (a *AttachmentCoordinator) Store(kind AttachmentKind, fileHeader *multipart.FileHeader) (*UploadedFile, error) {
	rules, ok := kindRules[kind]
	if !ok {
		return nil, fmt.Errorf("unknown attachment kind %q", kind)
	}

	if fileHeader.Size > rules.maxSizeBytes {
		return nil, &ValidationError{Message: fmt.Sprintf("file exceeds maximum size of %d MB", rules.maxSizeBytes/(1024*1024))}
	}

	src, err := fileHeader.Open()
	if err != nil {
		return nil, err
	}
	defer src.Close()

	buffer := make([]byte, 512)
	n, err := src.Read(buffer)
	if err != nil && err != io.EOF {
		return nil, err
	}
	mimeType := http.DetectContentType(buffer[:n])

	if rules.allowedMIME != nil {
		allowed := false
		for _, m := range rules.allowedMIME {
			if mimeType == m {
				allowed = true
				break
			}
		}
		if !allowed {
			return nil, &ValidationError{Message: fmt.Sprintf("invalid file type %s. Allowed types: %v", mimeType, rules.allowedMIME)}
		}
	}

	if _, err := src.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}

	bucketPath := filepath.Join(a.BasePath, rules.bucket)
	if err := os.MkdirAll(bucketPath, os.ModePerm); err != nil {
		return nil, err
	}

	ext := filepath.Ext(fileHeader.Filename)
	storedPath := filepath.Join(bucketPath, uuid.New().String()+ext)

	dst, err := os.Create(storedPath)
	if err != nil {
		return nil, err
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		os.Remove(storedPath)
		return nil, err
	}

	return &UploadedFile{
		Field:        string(kind),
		OriginalName: fileHeader.Filename,
		Path:         storedPath,
		Size:         fileHeader.Size,
		MIME:         mimeType,
	}, nil
}

// Release deletes a stored blob best-effort. A blob that is already gone
// is not a correctness problem, so failures are logged and swallowed.
func (a *AttachmentCoordinator) Release(path string) {
	if path == "" {
		return
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		log.Printf("failed to release attachment %s: %v", path, err)
	}
}

// ReleaseAll releases every path in one pass, used to clean up after a
// failed create or update.
func (a *AttachmentCoordinator) ReleaseAll(files []UploadedFile) {
	for _, f := range files {
		a.Release(f.Path)
	}
}
