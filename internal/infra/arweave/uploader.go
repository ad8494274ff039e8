// internal/infra/arweave/uploader.go
package arweave

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	mintdom "blockto/internal/domain/mint"
)

// Irys Uploader (Cloud Run) などの HTTP API を叩く実装
type HTTPUploader struct {
	client  *http.Client
	baseURL string // 例: "https://blockto-irys-uploader-xxxx.a.run.app"
	apiKey  string // 認証が必要な場合に使用
}

// NewHTTPUploader は Arweave/Irys 用の HTTP uploader を生成します。
func NewHTTPUploader(baseURL, apiKey string) *HTTPUploader {
	return &HTTPUploader{
		client:  &http.Client{Timeout: 30 * time.Second},
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		apiKey:  strings.TrimSpace(apiKey),
	}
}

// UploadText posts the JSON to the uploader and returns the Arweave transaction id.
func (u *HTTPUploader) UploadText(ctx context.Context, data []byte) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("arweave: data is empty")
	}
	if u.baseURL == "" {
		return "", fmt.Errorf("%w: arweave endpoint not configured", mintdom.ErrStorageUnavailable)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.baseURL+"/upload/json", bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("arweave: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if u.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+u.apiKey)
	}

	resp, err := u.client.Do(req)
	if err != nil {
		log.Printf("[arweave] http request FAILED err=%v", err)
		return "", fmt.Errorf("%w: arweave upload: %v", mintdom.ErrStorageUnavailable, err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		log.Printf("[arweave] upload FAILED status=%d body=%s", resp.StatusCode, string(body))
		return "", fmt.Errorf("%w: arweave status=%d", mintdom.ErrStorageUnavailable, resp.StatusCode)
	}

	var res struct {
		ID  string `json:"id"`
		URI string `json:"uri"` // 例: "https://gateway.irys.xyz/xxxx"
	}
	if err := json.Unmarshal(body, &res); err != nil {
		return "", fmt.Errorf("%w: decode arweave response: %v", mintdom.ErrStorageUnavailable, err)
	}

	id := strings.TrimSpace(res.ID)
	if id == "" {
		id = lastPathSegment(res.URI)
	}
	if id == "" {
		log.Printf("[arweave] upload response has no id/uri body=%s", string(body))
		return "", fmt.Errorf("%w: arweave response has no id", mintdom.ErrStorageUnavailable)
	}

	log.Printf("[arweave] UploadText OK id=%s", id)
	return id, nil
}

func lastPathSegment(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if parsed, err := url.Parse(raw); err == nil && parsed.Path != "" {
		raw = parsed.Path
	}
	seg := path.Base(strings.TrimRight(raw, "/"))
	if seg == "." || seg == "/" {
		return ""
	}
	return seg
}
