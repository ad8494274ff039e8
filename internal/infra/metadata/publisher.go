// internal/infra/metadata/publisher.go
package metadata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"

	usecase "blockto/internal/application/usecase"
	mintdom "blockto/internal/domain/mint"
)

// ContentUploader stores bytes in content-addressed storage and returns the content identifier.
type ContentUploader interface {
	UploadText(ctx context.Context, data []byte) (string, error)
}

var ErrPublisherNotConfigured = errors.New("metadata_publisher: not configured")

// Publisher builds the metadata JSON and uploads it.
type Publisher struct {
	Uploader ContentUploader

	// ImageGatewayBase resolves image content ids; MetadataGatewayBase resolves the uploaded JSON.
	ImageGatewayBase    string
	MetadataGatewayBase string

	Collection string
	Symbol     string
}

var _ usecase.MetadataPublisher = (*Publisher)(nil)

func NewPublisher(u ContentUploader, imageGateway, metadataGateway, collection, symbol string) *Publisher {
	return &Publisher{
		Uploader:            u,
		ImageGatewayBase:    strings.TrimSpace(imageGateway),
		MetadataGatewayBase: strings.TrimSpace(metadataGateway),
		Collection:          strings.TrimSpace(collection),
		Symbol:              strings.TrimSpace(symbol),
	}
}

// Document is the off-ledger metadata JSON (Metaplex token standard fields).
type Document struct {
	Name        string              `json:"name"`
	Symbol      string              `json:"symbol,omitempty"`
	Description string              `json:"description"`
	Image       string              `json:"image"`
	Collection  *DocumentCollection `json:"collection,omitempty"`
	Properties  *DocumentProperties `json:"properties,omitempty"`
}

type DocumentCollection struct {
	Name   string `json:"name"`
	Family string `json:"family"`
}

type DocumentProperties struct {
	Category string `json:"category"`
}

// BuildDocument is the JSON payload for desc. The image is not checked for existence.
func (p *Publisher) BuildDocument(desc mintdom.AssetDescription) Document {
	doc := Document{
		Name:        desc.Name,
		Symbol:      p.Symbol,
		Description: desc.Description,
		Image:       mintdom.JoinGateway(p.ImageGatewayBase, desc.ImageContentID),
		Properties:  &DocumentProperties{Category: "image"},
	}
	if p.Collection != "" {
		doc.Collection = &DocumentCollection{Name: p.Collection, Family: p.Collection}
	}
	return doc
}

// Publish uploads the metadata document. Every call creates a new record.
func (p *Publisher) Publish(ctx context.Context, desc mintdom.AssetDescription) (mintdom.MetadataDescriptor, error) {
	if p == nil || p.Uploader == nil {
		return mintdom.MetadataDescriptor{}, fmt.Errorf("%w: %w", mintdom.ErrStorageUnavailable, ErrPublisherNotConfigured)
	}
	if err := desc.Validate(); err != nil {
		return mintdom.MetadataDescriptor{}, err
	}
	// URI 上限はアップロード前に確認する (超過分のアップロードを無駄にしない)
	if err := mintdom.ValidateGatewayBase(p.MetadataGatewayBase); err != nil {
		return mintdom.MetadataDescriptor{}, fmt.Errorf("%w: %w", mintdom.ErrStorageUnavailable, err)
	}

	body, err := json.Marshal(p.BuildDocument(desc))
	if err != nil {
		return mintdom.MetadataDescriptor{}, fmt.Errorf("metadata_publisher: marshal: %w", err)
	}

	cid, err := p.Uploader.UploadText(ctx, body)
	if err != nil {
		if !errors.Is(err, mintdom.ErrStorageUnavailable) {
			err = fmt.Errorf("%w: %v", mintdom.ErrStorageUnavailable, err)
		}
		return mintdom.MetadataDescriptor{}, err
	}

	md, err := mintdom.NewMetadataDescriptor(desc, p.MetadataGatewayBase, cid)
	if err != nil {
		return mintdom.MetadataDescriptor{}, fmt.Errorf("%w: %v", mintdom.ErrStorageUnavailable, err)
	}

	log.Printf("[metadata_publisher] published name=%q cid=%s uri=%s", md.Name, md.ContentIdentifier, md.URI)
	return md, nil
}
