// internal/domain/transfer/incident.go
package transfer

import (
	"context"
	"errors"
	"strings"
	"time"
)

// Incident records an asset that was minted into custody but never reached the recipient.
// It is a terminal record for manual reconciliation, not resumable workflow state.
type Incident struct {
	ID             string    `json:"id"`
	Kind           Kind      `json:"kind"`
	CorrelationTag string    `json:"correlationTag"`
	Recipient      string    `json:"recipient"`
	CustodyAddress string    `json:"custodyAddress"`
	AssetID        string    `json:"assetId,omitempty"`
	MintSignature  string    `json:"mintSignature"`
	MintSlot       uint64    `json:"mintSlot"`
	MetadataURI    string    `json:"metadataUri"`
	Reason         string    `json:"reason"`
	CreatedAt      time.Time `json:"createdAt"`
}

var ErrInvalidIncident = errors.New("transfer: invalid incident")

func (i Incident) Validate() error {
	if strings.TrimSpace(i.ID) == "" || strings.TrimSpace(i.MintSignature) == "" {
		return ErrInvalidIncident
	}
	switch i.Kind {
	case KindAssetNotFound, KindTransferFailedAfterMint:
	default:
		return ErrInvalidIncident
	}
	return nil
}

// IncidentRepository persists incidents.
type IncidentRepository interface {
	Save(ctx context.Context, inc Incident) error
}
