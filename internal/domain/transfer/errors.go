// internal/domain/transfer/errors.go
package transfer

import (
	"context"
	"errors"

	ledgerdom "blockto/internal/domain/ledger"
	mintdom "blockto/internal/domain/mint"
)

// Kind is the error taxonomy surfaced to callers.
type Kind string

const (
	KindMissingSession          Kind = "MissingSession"
	KindInvalidRequest          Kind = "InvalidRequest"
	KindStorageUnavailable      Kind = "StorageUnavailable"
	KindKeyDerivationError      Kind = "KeyDerivationError"
	KindTransactionRejected     Kind = "TransactionRejected"
	KindFinalityTimeout         Kind = "FinalityTimeout"
	KindAssetNotFound           Kind = "AssetNotFound"
	KindTransferFailedAfterMint Kind = "TransferFailedAfterMint"
)

var (
	ErrMissingSession = errors.New("transfer: recipient session missing")
	ErrInvalidRequest = errors.New("transfer: invalid request")
)

// FailureError is the typed failure of a run.
type FailureError struct {
	Kind   Kind
	Stage  Stage // last stage completed before the failure
	Reason string
	Err    error
}

func (e *FailureError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Reason == "" {
		return string(e.Kind) + " at " + string(e.Stage)
	}
	return string(e.Kind) + " at " + string(e.Stage) + ": " + e.Reason
}

func (e *FailureError) Unwrap() error { return e.Err }

// KindOf maps a component error to the taxonomy. Unknown errors map to fallback.
func KindOf(err error, fallback Kind) Kind {
	var fe *FailureError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &fe):
		return fe.Kind
	case errors.Is(err, ErrMissingSession):
		return KindMissingSession
	case errors.Is(err, ErrInvalidRequest):
		return KindInvalidRequest
	case errors.Is(err, mintdom.ErrStorageUnavailable):
		return KindStorageUnavailable
	case errors.Is(err, mintdom.ErrKeyDerivation):
		return KindKeyDerivationError
	case errors.Is(err, ledgerdom.ErrTransactionRejected):
		return KindTransactionRejected
	case errors.Is(err, ledgerdom.ErrFinalityTimeout), errors.Is(err, context.DeadlineExceeded):
		return KindFinalityTimeout
	case errors.Is(err, mintdom.ErrAssetNotFound):
		return KindAssetNotFound
	default:
		return fallback
	}
}
