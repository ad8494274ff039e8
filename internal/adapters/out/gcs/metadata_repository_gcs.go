// internal/adapters/out/gcs/metadata_repository_gcs.go
package gcs

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"strings"

	"cloud.google.com/go/storage"

	gcscommon "blockto/internal/adapters/out/gcs/common"
	mintdom "blockto/internal/domain/mint"
)

// MetadataRepositoryGCS
// 責任と機能:
// - NFT metadata JSON を GCS に content-addressed (sha256) で保存する
// - 返す content identifier は hex digest。URI は GatewayBase() + "/" + digest
type MetadataRepositoryGCS struct {
	Client *storage.Client
	Bucket string
}

const (
	defaultMetadataBucket = "blockto_nft_metadata"
	metadataPrefix        = "metadata"
)

func NewMetadataRepositoryGCS(client *storage.Client, bucket string) *MetadataRepositoryGCS {
	b := strings.TrimSpace(bucket)
	if b == "" {
		b = defaultMetadataBucket
	}
	return &MetadataRepositoryGCS{Client: client, Bucket: b}
}

func (r *MetadataRepositoryGCS) bucket() string {
	b := strings.TrimSpace(r.Bucket)
	if b == "" {
		return defaultMetadataBucket
	}
	return b
}

// GatewayBase is the public URL prefix the content identifiers resolve under.
func (r *MetadataRepositoryGCS) GatewayBase() string {
	return gcscommon.GCSPublicURL(r.bucket(), metadataPrefix, defaultMetadataBucket)
}

// ContentAddress returns the hex sha256 of data.
func ContentAddress(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func objectPath(cid string) string {
	return metadataPrefix + "/" + cid
}

// UploadText stores data at metadata/<sha256>. Identical bytes map to the same object.
func (r *MetadataRepositoryGCS) UploadText(ctx context.Context, data []byte) (string, error) {
	if r == nil || r.Client == nil {
		return "", fmt.Errorf("%w: MetadataRepositoryGCS: nil storage client", mintdom.ErrStorageUnavailable)
	}
	if len(data) == 0 {
		return "", errors.New("metadata_repository_gcs: data is empty")
	}

	cid := ContentAddress(data)
	oh := r.Client.Bucket(r.bucket()).Object(objectPath(cid))

	_, err := oh.Attrs(ctx)
	if err == nil {
		log.Printf("[metadata_repository_gcs] already stored cid=%s", cid)
		return cid, nil
	}
	if !errors.Is(err, storage.ErrObjectNotExist) {
		return "", fmt.Errorf("%w: gcs attrs: %v", mintdom.ErrStorageUnavailable, err)
	}

	w := oh.NewWriter(ctx)
	w.ContentType = "application/json"
	w.CacheControl = "public, max-age=31536000, immutable"
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("%w: gcs write: %v", mintdom.ErrStorageUnavailable, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("%w: gcs close: %v", mintdom.ErrStorageUnavailable, err)
	}

	log.Printf("[metadata_repository_gcs] UploadText OK bucket=%s cid=%s size=%d", r.bucket(), cid, len(data))
	return cid, nil
}
