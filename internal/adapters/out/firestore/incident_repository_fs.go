// internal/adapters/out/firestore/incident_repository_fs.go
package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	transferdom "blockto/internal/domain/transfer"
)

// IncidentRepositoryFS は stranded asset の記録を Firestore に保存します。
// ドキュメント ID は correlation tag（= incident ID）で、同じ tag の二重書き込みは拒否します。
type IncidentRepositoryFS struct {
	client *firestore.Client
}

// コンパイル時チェック
var _ transferdom.IncidentRepository = (*IncidentRepositoryFS)(nil)

var ErrIncidentExists = errors.New("incident_repository_fs: incident already recorded")

const incidentsCollection = "mint_incidents"

func NewIncidentRepositoryFS(client *firestore.Client) *IncidentRepositoryFS {
	return &IncidentRepositoryFS{client: client}
}

// Firestore 上のドキュメント構造
type incidentDoc struct {
	ID             string    `firestore:"id"`
	Kind           string    `firestore:"kind"`
	CorrelationTag string    `firestore:"correlationTag"`
	Recipient      string    `firestore:"recipient"`
	CustodyAddress string    `firestore:"custodyAddress"`
	AssetID        string    `firestore:"assetId"`
	MintSignature  string    `firestore:"mintSignature"`
	MintSlot       int64     `firestore:"mintSlot"`
	MetadataURI    string    `firestore:"metadataUri"`
	Reason         string    `firestore:"reason"`
	Resolved       bool      `firestore:"resolved"`
	CreatedAt      time.Time `firestore:"createdAt"`
}

func (r *IncidentRepositoryFS) collection() *firestore.CollectionRef {
	return r.client.Collection(incidentsCollection)
}

func incidentToDoc(inc transferdom.Incident) incidentDoc {
	return incidentDoc{
		ID:             strings.TrimSpace(inc.ID),
		Kind:           string(inc.Kind),
		CorrelationTag: inc.CorrelationTag,
		Recipient:      inc.Recipient,
		CustodyAddress: inc.CustodyAddress,
		AssetID:        inc.AssetID,
		MintSignature:  inc.MintSignature,
		MintSlot:       int64(inc.MintSlot),
		MetadataURI:    inc.MetadataURI,
		Reason:         inc.Reason,
		CreatedAt:      inc.CreatedAt.UTC(),
	}
}

// Save creates mint_incidents/{id}.
func (r *IncidentRepositoryFS) Save(ctx context.Context, inc transferdom.Incident) error {
	if r == nil || r.client == nil {
		return errors.New("incident_repository_fs: nil firestore client")
	}
	if err := inc.Validate(); err != nil {
		return err
	}

	d := incidentToDoc(inc)
	if _, err := r.collection().Doc(d.ID).Create(ctx, d); err != nil {
		if status.Code(err) == codes.AlreadyExists {
			return ErrIncidentExists
		}
		return fmt.Errorf("incident_repository_fs: create %s: %w", d.ID, err)
	}
	return nil
}
