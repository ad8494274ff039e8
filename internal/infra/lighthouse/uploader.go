// internal/infra/lighthouse/uploader.go
package lighthouse

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	mintdom "blockto/internal/domain/mint"
)

// Lighthouse (IPFS pinning) の add API を叩く実装
type HTTPUploader struct {
	client  *http.Client
	baseURL string // 例: "https://node.lighthouse.storage"
	apiKey  string
}

func NewHTTPUploader(baseURL, apiKey string) *HTTPUploader {
	return &HTTPUploader{
		client:  &http.Client{Timeout: 30 * time.Second},
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		apiKey:  strings.TrimSpace(apiKey),
	}
}

// UploadText uploads data as a single file and returns its CID.
func (u *HTTPUploader) UploadText(ctx context.Context, data []byte) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("lighthouse: data is empty")
	}
	if u.baseURL == "" || u.apiKey == "" {
		return "", fmt.Errorf("%w: lighthouse endpoint or api key not configured", mintdom.ErrStorageUnavailable)
	}

	var form bytes.Buffer
	mw := multipart.NewWriter(&form)
	fw, err := mw.CreateFormFile("file", "metadata.json")
	if err != nil {
		return "", fmt.Errorf("lighthouse: create form file: %w", err)
	}
	if _, err := fw.Write(data); err != nil {
		return "", fmt.Errorf("lighthouse: write form file: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("lighthouse: close form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.baseURL+"/api/v0/add", &form)
	if err != nil {
		return "", fmt.Errorf("lighthouse: create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+u.apiKey)

	resp, err := u.client.Do(req)
	if err != nil {
		log.Printf("[lighthouse] http request FAILED err=%v", err)
		return "", fmt.Errorf("%w: lighthouse upload: %v", mintdom.ErrStorageUnavailable, err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		log.Printf("[lighthouse] upload FAILED status=%d body=%s", resp.StatusCode, string(body))
		return "", fmt.Errorf("%w: lighthouse status=%d", mintdom.ErrStorageUnavailable, resp.StatusCode)
	}

	// {"Name":"metadata.json","Hash":"bafy...","Size":"123"}
	cid := gjson.GetBytes(body, "Hash").String()
	if cid == "" {
		cid = gjson.GetBytes(body, "data.Hash").String()
	}
	if cid == "" {
		log.Printf("[lighthouse] response has no Hash body=%s", string(body))
		return "", fmt.Errorf("%w: lighthouse response has no Hash", mintdom.ErrStorageUnavailable)
	}

	log.Printf("[lighthouse] UploadText OK cid=%s size=%d", cid, len(data))
	return cid, nil
}
