// internal/domain/mint/errors.go
package mint

import "errors"

// Failures raised by the off-ledger components. Infra wraps them with %w.
var (
	ErrStorageUnavailable = errors.New("mint: storage unavailable")
	ErrKeyDerivation      = errors.New("mint: key derivation failed")
	ErrAssetNotFound      = errors.New("mint: asset not found")
)
