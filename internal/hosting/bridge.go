// internal/hosting/bridge.go

// Package hosting stages local files in simple-content storage so that
// services which only accept URLs can fetch them.
package hosting

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	simplecontent "github.com/tendant/simple-content/pkg/simplecontent"
)

// ErrNoDownloadURL is returned when storage has the object but cannot hand
// out a URL for it, e.g. a backend without delegated URLs.
var ErrNoDownloadURL = errors.New("hosting: no download url for staged content")

// ContentService is the subset of simplecontent.Service the bridge uses.
type ContentService interface {
	UploadContent(ctx context.Context, req simplecontent.UploadContentRequest) (*simplecontent.Content, error)
	GetContentDetails(ctx context.Context, contentID uuid.UUID, opts ...simplecontent.ContentDetailsOption) (*simplecontent.ContentDetails, error)
}

// Bridge uploads artifacts and returns their public URL.
type Bridge struct {
	svc      ContentService
	backend  string
	ownerID  uuid.UUID
	tenantID uuid.UUID
	logger   *slog.Logger
}

// NewBridge wraps a simple-content service with the storage backend to write to.
// Staged content is owned by ownerID within tenantID.
func NewBridge(svc ContentService, backend string, ownerID, tenantID uuid.UUID, logger *slog.Logger) *Bridge {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bridge{svc: svc, backend: backend, ownerID: ownerID, tenantID: tenantID, logger: logger}
}

// Stage uploads localPath and returns a URL anyone can download it from.
func (b *Bridge) Stage(ctx context.Context, localPath string) (string, error) {
	info, err := os.Stat(localPath)
	if err != nil {
		return "", fmt.Errorf("stat artifact: %w", err)
	}
	mimeType, err := detectMime(localPath)
	if err != nil {
		return "", err
	}

	file, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("open artifact: %w", err)
	}
	defer file.Close()

	fileName := filepath.Base(localPath)
	content, err := b.svc.UploadContent(ctx, simplecontent.UploadContentRequest{
		OwnerID:            b.ownerID,
		TenantID:           b.tenantID,
		Name:               fileName,
		DocumentType:       mimeType,
		StorageBackendName: b.backend,
		Reader:             file,
		FileName:           fileName,
		FileSize:           info.Size(),
		Tags:               []string{"reel", "publish-staging"},
	})
	if err != nil {
		return "", fmt.Errorf("upload content: %w", err)
	}

	details, err := b.svc.GetContentDetails(ctx, content.ID)
	if err != nil {
		return "", fmt.Errorf("get content details: %w", err)
	}
	if details.Download == "" {
		return "", ErrNoDownloadURL
	}
	b.logger.Info("artifact staged", "content_id", content.ID, "backend", b.backend, "size", info.Size())
	return details.Download, nil
}

func detectMime(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open for mime detect: %w", err)
	}
	defer file.Close()

	buf := make([]byte, 512)
	n, err := file.Read(buf)
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("read for mime detect: %w", err)
	}
	return http.DetectContentType(buf[:n]), nil
}
