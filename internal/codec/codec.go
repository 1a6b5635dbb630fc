package codec

import (
	"fmt"
	"io"
	"strings"

	"dctwin/internal/domain"
)

// SceneImporter parses a site scene document
type SceneImporter interface {
	ParseScene(r io.Reader) (*domain.SceneModel, error)
	Format() string
}

// SceneExporter writes a site scene document
type SceneExporter interface {
	ExportScene(model *domain.SceneModel, w io.Writer) error
	Format() string
}

// ScanImporter parses a normalized verification scan
type ScanImporter interface {
	ParseScan(r io.Reader) ([]domain.VerificationRecord, error)
	Format() string
}

// Codec reads and writes every document kind in one format
type Codec interface {
	SceneImporter
	SceneExporter
	ScanImporter
	ContentType() string
}

// ForFormat returns the codec for a format name or file extension
func ForFormat(format string) (Codec, error) {
	switch strings.TrimPrefix(strings.ToLower(format), ".") {
	case "yaml", "yml", "":
		return NewYAMLCodec(), nil
	case "json":
		return NewJSONCodec(), nil
	}
	return nil, fmt.Errorf("%w: unsupported format %q", domain.ErrValidation, format)
}
