// internal/adapters/out/gcs/common/gcs_repository.go
package common

import (
	"fmt"
	"strings"
)

// GCSPublicURL builds a public GCS URL.
// - bucket が空なら defaultBucket を使用
// - objectPath の先頭の "/" は除去
func GCSPublicURL(bucket, objectPath, defaultBucket string) string {
	b := strings.TrimSpace(bucket)
	if b == "" {
		b = strings.TrimSpace(defaultBucket)
	}
	obj := strings.TrimLeft(strings.TrimSpace(objectPath), "/")
	if obj == "" {
		return fmt.Sprintf("https://storage.googleapis.com/%s", b)
	}
	return fmt.Sprintf("https://storage.googleapis.com/%s/%s", b, obj)
}
