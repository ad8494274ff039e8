// cmd/upload_smoke/main.go
package main

import (
	"context"
	"encoding/json"
	"log"
	"time"

	mintdom "blockto/internal/domain/mint"
	arweaveinfra "blockto/internal/infra/arweave"
	appcfg "blockto/internal/infra/config"
	lighthouseinfra "blockto/internal/infra/lighthouse"
	"blockto/internal/infra/metadata"
)

// Uploads a small JSON through the configured uploader (lighthouse / irys) and prints the resulting URI.
func main() {
	cfg := appcfg.Load()

	var up metadata.ContentUploader
	switch cfg.StorageBackend {
	case appcfg.StorageLighthouse:
		up = lighthouseinfra.NewHTTPUploader(cfg.LighthouseAPIURL, cfg.StorageAPIKey)
	case appcfg.StorageIrys:
		up = arweaveinfra.NewHTTPUploader(cfg.ArweaveBaseURL, cfg.ArweaveAPIKey)
	default:
		log.Fatalf("upload_smoke supports lighthouse / irys only (STORAGE_BACKEND=%s)", cfg.StorageBackend)
	}

	payload := map[string]any{
		"hello": "from upload_smoke",
		"ts":    time.Now().UTC().Format(time.RFC3339),
	}
	data, err := json.Marshal(payload)
	if err != nil {
		log.Fatalf("marshal json: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	log.Printf("[upload-smoke] backend=%s uploading %d bytes ...", cfg.StorageBackend, len(data))
	cid, err := up.UploadText(ctx, data)
	if err != nil {
		log.Fatalf("[upload-smoke] upload failed: %v", err)
	}

	log.Printf("[upload-smoke] OK cid=%s uri=%s", cid, mintdom.JoinGateway(cfg.StorageGatewayBase, cid))
}
