package codec

import (
	"errors"
	"fmt"
	"io"

	"dctwin/internal/domain"

	"gopkg.in/yaml.v3"
)

// YAMLCodec handles YAML scene and scan documents
type YAMLCodec struct{}

// NewYAMLCodec creates a new YAML codec
func NewYAMLCodec() *YAMLCodec {
	return &YAMLCodec{}
}

// Format returns the codec format identifier
func (c *YAMLCodec) Format() string {
	return "yaml"
}

// ContentType returns the MIME type of exported documents
func (c *YAMLCodec) ContentType() string {
	return "application/x-yaml"
}

// ParseScene imports a site scene from YAML
func (c *YAMLCodec) ParseScene(r io.Reader) (*domain.SceneModel, error) {
	var doc sceneDocument
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)
	if err := decoder.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: failed to parse YAML: %v", domain.ErrValidation, err)
	}
	return doc.toModel()
}

// ExportScene writes a site scene as YAML
func (c *YAMLCodec) ExportScene(model *domain.SceneModel, w io.Writer) error {
	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(2)
	defer encoder.Close()

	if err := encoder.Encode(fromModel(model)); err != nil {
		return fmt.Errorf("failed to encode YAML: %w", err)
	}
	return nil
}

// ParseScan imports verification records from YAML
func (c *YAMLCodec) ParseScan(r io.Reader) ([]domain.VerificationRecord, error) {
	var doc scanDocument
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: failed to parse YAML: %v", domain.ErrValidation, err)
	}
	return validateScan(&doc)
}
