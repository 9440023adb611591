package repository

import (
	"context"
	"fmt"
	"sort"

	"github.com/Proton-105/guildbank/internal/domain"
)

// UpsertIdentity inserts a new identity keyed by external id or refreshes the
// display name of the existing one.
func (t *pgTx) UpsertIdentity(ctx context.Context, ref domain.UserRef) (*domain.Identity, error) {
	const query = `
		INSERT INTO identities (external_id, display_name)
		VALUES ($1, $2)
		ON CONFLICT (external_id) DO UPDATE
		SET display_name = EXCLUDED.display_name, updated_at = now()
		RETURNING id, external_id, display_name, created_at, updated_at
	`

	var identity domain.Identity
	if err := t.q.QueryRowContext(ctx, query, ref.ExternalID, ref.DisplayName).Scan(
		&identity.ID,
		&identity.ExternalID,
		&identity.DisplayName,
		&identity.CreatedAt,
		&identity.UpdatedAt,
	); err != nil {
		return nil, fmt.Errorf("upsert identity %s: %w", ref.ExternalID, err)
	}

	return &identity, nil
}

// UpsertIdentities upserts refs one row per external id, in ascending external
// id order, and returns the rows keyed by external id. The upsert locks each
// identity row until the transaction ends; a shared order keeps two
// transactions touching the same users from waiting on each other. The last
// display name listed for a user wins.
func UpsertIdentities(ctx context.Context, tx Tx, refs ...domain.UserRef) (map[string]*domain.Identity, error) {
	unique := make(map[string]domain.UserRef, len(refs))
	for _, ref := range refs {
		unique[ref.ExternalID] = ref
	}

	ids := make([]string, 0, len(unique))
	for id := range unique {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	identities := make(map[string]*domain.Identity, len(ids))
	for _, id := range ids {
		identity, err := tx.UpsertIdentity(ctx, unique[id])
		if err != nil {
			return nil, err
		}
		identities[id] = identity
	}

	return identities, nil
}
