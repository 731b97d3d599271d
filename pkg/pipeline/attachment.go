package pipeline

import (
	"fmt"
	"mime"
	"os"
	"path/filepath"

	"github.com/aretw0/parley/pkg/domain"
)

// LoadAttachment reads a media file from disk for an Image or Audio part.
func LoadAttachment(path string) (*domain.Attachment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read attachment: %w", err)
	}
	name := filepath.Base(path)
	return &domain.Attachment{
		FileName:    name,
		ContentType: mime.TypeByExtension(filepath.Ext(name)),
		Data:        data,
	}, nil
}
