package codec

import (
	"encoding/json"
	"fmt"
	"io"

	"dctwin/internal/domain"
)

// JSONCodec handles JSON scene and scan documents
type JSONCodec struct{}

// NewJSONCodec creates a new JSON codec
func NewJSONCodec() *JSONCodec {
	return &JSONCodec{}
}

// Format returns the codec format identifier
func (c *JSONCodec) Format() string {
	return "json"
}

// ContentType returns the MIME type of exported documents
func (c *JSONCodec) ContentType() string {
	return "application/json"
}

// ParseScene imports a site scene from JSON
func (c *JSONCodec) ParseScene(r io.Reader) (*domain.SceneModel, error) {
	var doc sceneDocument
	decoder := json.NewDecoder(r)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: failed to parse JSON: %v", domain.ErrValidation, err)
	}
	return doc.toModel()
}

// ExportScene writes a site scene as JSON
func (c *JSONCodec) ExportScene(model *domain.SceneModel, w io.Writer) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")

	if err := encoder.Encode(fromModel(model)); err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}
	return nil
}

// ParseScan imports verification records from JSON
func (c *JSONCodec) ParseScan(r io.Reader) ([]domain.VerificationRecord, error) {
	var doc scanDocument
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: failed to parse JSON: %v", domain.ErrValidation, err)
	}
	return validateScan(&doc)
}
