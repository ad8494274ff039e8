// internal/domain/ledger/entity.go
package ledger

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

/*
責任と機能:
- Ledger に送る「意図」(Intent) と、送信後の Transaction の状態遷移を表す。
- Transaction は pending → success / failed へ一度だけ遷移する (再試行はしない)。
*/

type IntentKind string

const (
	IntentMintAsset     IntentKind = "mint-asset"
	IntentTransferAsset IntentKind = "transfer-asset"
)

type Status string

const (
	StatusPending Status = "pending"
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

var (
	ErrInvalidIntent       = errors.New("ledger: invalid intent")
	ErrInvalidTransition   = errors.New("ledger: invalid status transition")
	ErrTransactionRejected = errors.New("ledger: transaction rejected")
	ErrFinalityTimeout     = errors.New("ledger: finality timeout")
)

// RejectedError carries the network's rejection detail.
type RejectedError struct {
	Reason string
}

func (e *RejectedError) Error() string {
	if e == nil || strings.TrimSpace(e.Reason) == "" {
		return ErrTransactionRejected.Error()
	}
	return ErrTransactionRejected.Error() + ": " + e.Reason
}

func (e *RejectedError) Is(target error) bool { return target == ErrTransactionRejected }

// SigningAccount is a custodial account derived for exactly one transaction.
// Release wipes the private key; the account is unusable afterwards.
type SigningAccount interface {
	Address() string
	Release()
}

// MintIntent asks the ledger to create one asset in the collection, owned by the signer.
type MintIntent struct {
	Name           string
	Symbol         string
	URI            string
	CorrelationTag string
}

// TransferIntent moves an asset held by the signer to Recipient.
type TransferIntent struct {
	AssetID   string
	Recipient string
}

type Intent struct {
	Kind     IntentKind
	Mint     *MintIntent
	Transfer *TransferIntent
}

func NewMintIntent(name, symbol, uri, correlationTag string) Intent {
	return Intent{
		Kind: IntentMintAsset,
		Mint: &MintIntent{
			Name:           strings.TrimSpace(name),
			Symbol:         strings.TrimSpace(symbol),
			URI:            strings.TrimSpace(uri),
			CorrelationTag: strings.TrimSpace(correlationTag),
		},
	}
}

func NewTransferIntent(assetID, recipient string) Intent {
	return Intent{
		Kind: IntentTransferAsset,
		Transfer: &TransferIntent{
			AssetID:   strings.TrimSpace(assetID),
			Recipient: strings.TrimSpace(recipient),
		},
	}
}

func (i Intent) Validate() error {
	switch i.Kind {
	case IntentMintAsset:
		if i.Mint == nil || i.Mint.Name == "" || i.Mint.URI == "" {
			return fmt.Errorf("%w: mint name/uri required", ErrInvalidIntent)
		}
	case IntentTransferAsset:
		if i.Transfer == nil || i.Transfer.AssetID == "" || i.Transfer.Recipient == "" {
			return fmt.Errorf("%w: assetId/recipient required", ErrInvalidIntent)
		}
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidIntent, i.Kind)
	}
	return nil
}

// Transaction is one submitted ledger transaction.
type Transaction struct {
	Hash          string     `json:"hash"`
	Kind          IntentKind `json:"kind"`
	SubmittedAt   time.Time  `json:"submittedAt"`
	Status        Status     `json:"status"`
	LedgerVersion uint64     `json:"ledgerVersion,omitempty"`
	FailureReason string     `json:"failureReason,omitempty"`

	// CreatedAssetID is set for mint transactions (the mint address generated client-side).
	CreatedAssetID string `json:"createdAssetId,omitempty"`
}

func NewPending(hash string, kind IntentKind, submittedAt time.Time) Transaction {
	return Transaction{
		Hash:        strings.TrimSpace(hash),
		Kind:        kind,
		SubmittedAt: submittedAt.UTC(),
		Status:      StatusPending,
	}
}

// MarkSucceeded records the finalized ledger version.
func (t *Transaction) MarkSucceeded(version uint64) error {
	if t == nil || t.Status != StatusPending {
		return ErrInvalidTransition
	}
	t.Status = StatusSuccess
	t.LedgerVersion = version
	return nil
}

func (t *Transaction) MarkFailed(reason string) error {
	if t == nil || t.Status != StatusPending {
		return ErrInvalidTransition
	}
	t.Status = StatusFailed
	t.FailureReason = strings.TrimSpace(reason)
	return nil
}
