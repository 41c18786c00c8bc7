package upload

import (
	"context"
	"encoding/json"
	"fmt"

	"puzzle-mint/internal/domain"
)

// MetadataBuilder assembles the metadata document and uploads it.
type MetadataBuilder struct {
	uploader Uploader
}

// NewMetadataBuilder creates a builder on top of an uploader.
func NewMetadataBuilder(uploader Uploader) *MetadataBuilder {
	return &MetadataBuilder{uploader: uploader}
}

// Compose returns the metadata document without uploading it.
func Compose(name, description, imageLocator string, attributes []domain.Attribute) domain.Metadata {
	if attributes == nil {
		attributes = []domain.Attribute{}
	}
	return domain.Metadata{
		Name:        name,
		Description: description,
		Image:       imageLocator,
		Attributes:  attributes,
	}
}

// Build uploads the metadata document and returns its locator.
// Upload errors are returned unchanged.
func (b *MetadataBuilder) Build(ctx context.Context, name, description, imageLocator string, attributes []domain.Attribute) (string, error) {
	doc := Compose(name, description, imageLocator, attributes)

	data, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("%w: marshal metadata: %v", ErrUploadFailed, err)
	}

	return b.uploader.Upload(ctx, Payload{
		Kind:     KindMetadata,
		Filename: "metadata.json",
		Data:     data,
	})
}
