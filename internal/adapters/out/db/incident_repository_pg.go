// internal/adapters/out/db/incident_repository_pg.go
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"

	transferdom "blockto/internal/domain/transfer"
)

// IncidentRepositoryPG implements transfer.IncidentRepository using PostgreSQL.
type IncidentRepositoryPG struct {
	DB *sql.DB
}

var _ transferdom.IncidentRepository = (*IncidentRepositoryPG)(nil)

var ErrIncidentExists = errors.New("incident_repository_pg: incident already recorded")

// unique_violation
const pqUniqueViolation = "23505"

func NewIncidentRepositoryPG(db *sql.DB) *IncidentRepositoryPG {
	return &IncidentRepositoryPG{DB: db}
}

const incidentsDDL = `
CREATE TABLE IF NOT EXISTS mint_incidents (
  id              TEXT PRIMARY KEY,
  kind            TEXT NOT NULL,
  correlation_tag TEXT NOT NULL,
  recipient       TEXT NOT NULL,
  custody_address TEXT NOT NULL,
  asset_id        TEXT NOT NULL DEFAULT '',
  mint_signature  TEXT NOT NULL,
  mint_slot       BIGINT NOT NULL,
  metadata_uri    TEXT NOT NULL DEFAULT '',
  reason          TEXT NOT NULL DEFAULT '',
  resolved        BOOLEAN NOT NULL DEFAULT FALSE,
  created_at      TIMESTAMPTZ NOT NULL
)`

// EnsureSchema creates the mint_incidents table when missing.
func (r *IncidentRepositoryPG) EnsureSchema(ctx context.Context) error {
	if r == nil || r.DB == nil {
		return errors.New("incident_repository_pg: nil db")
	}
	if _, err := r.DB.ExecContext(ctx, incidentsDDL); err != nil {
		return fmt.Errorf("incident_repository_pg: ensure schema: %w", err)
	}
	return nil
}

func (r *IncidentRepositoryPG) Save(ctx context.Context, inc transferdom.Incident) error {
	if r == nil || r.DB == nil {
		return errors.New("incident_repository_pg: nil db")
	}
	if err := inc.Validate(); err != nil {
		return err
	}

	const q = `
INSERT INTO mint_incidents (
  id, kind, correlation_tag, recipient, custody_address,
  asset_id, mint_signature, mint_slot, metadata_uri, reason, created_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
`
	_, err := r.DB.ExecContext(ctx, q,
		strings.TrimSpace(inc.ID),
		string(inc.Kind),
		inc.CorrelationTag,
		inc.Recipient,
		inc.CustodyAddress,
		inc.AssetID,
		inc.MintSignature,
		int64(inc.MintSlot),
		inc.MetadataURI,
		inc.Reason,
		inc.CreatedAt.UTC(),
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == pqUniqueViolation {
			return ErrIncidentExists
		}
		return fmt.Errorf("incident_repository_pg: insert %s: %w", inc.ID, err)
	}
	return nil
}

// ListUnresolved returns unresolved incidents, oldest first.
func (r *IncidentRepositoryPG) ListUnresolved(ctx context.Context, limit int) ([]transferdom.Incident, error) {
	if r == nil || r.DB == nil {
		return nil, errors.New("incident_repository_pg: nil db")
	}
	if limit <= 0 {
		limit = 100
	}

	const q = `
SELECT id, kind, correlation_tag, recipient, custody_address,
       asset_id, mint_signature, mint_slot, metadata_uri, reason, created_at
FROM mint_incidents
WHERE resolved = FALSE
ORDER BY created_at ASC
LIMIT $1
`
	rows, err := r.DB.QueryContext(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("incident_repository_pg: list: %w", err)
	}
	defer rows.Close()

	var out []transferdom.Incident
	for rows.Next() {
		var (
			inc  transferdom.Incident
			kind string
			slot int64
		)
		if err := rows.Scan(
			&inc.ID, &kind, &inc.CorrelationTag, &inc.Recipient, &inc.CustodyAddress,
			&inc.AssetID, &inc.MintSignature, &slot, &inc.MetadataURI, &inc.Reason, &inc.CreatedAt,
		); err != nil {
			return nil, err
		}
		inc.Kind = transferdom.Kind(kind)
		inc.MintSlot = uint64(slot)
		out = append(out, inc)
	}
	return out, rows.Err()
}

// MarkResolved flags an incident after manual reconciliation.
func (r *IncidentRepositoryPG) MarkResolved(ctx context.Context, id string) error {
	if r == nil || r.DB == nil {
		return errors.New("incident_repository_pg: nil db")
	}
	res, err := r.DB.ExecContext(ctx, `UPDATE mint_incidents SET resolved = TRUE WHERE id = $1`, strings.TrimSpace(id))
	if err != nil {
		return fmt.Errorf("incident_repository_pg: resolve %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}
