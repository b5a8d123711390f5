package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"layerplane/internal/store"

	"github.com/lib/pq"
)

func (s *Store) RecordBuild(ctx context.Context, b *store.Build) error {
	query := `
		INSERT INTO builds (id, layer_name, runtime_version, packages, status, error, artifact_size, object_key, started_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := s.db.ExecContext(ctx, query,
		b.ID,
		b.LayerName,
		b.RuntimeVersion,
		pq.Array(b.Packages),
		b.Status,
		nullString(b.Error),
		b.ArtifactSize,
		nullString(b.ObjectKey),
		b.StartedAt,
		b.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record build: %w", err)
	}
	return nil
}

func (s *Store) ListBuilds(ctx context.Context, limit, offset int) ([]store.Build, error) {
	limit, offset = store.ClampPage(limit, offset)

	query := `
		SELECT id, layer_name, runtime_version, packages, status, error, artifact_size, object_key, started_at, completed_at
		FROM builds
		ORDER BY started_at DESC
		LIMIT $1 OFFSET $2
	`

	rows, err := s.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list builds: %w", err)
	}
	defer rows.Close()

	var builds []store.Build
	for rows.Next() {
		var b store.Build
		var errMsg, objectKey sql.NullString
		if err := rows.Scan(
			&b.ID,
			&b.LayerName,
			&b.RuntimeVersion,
			pq.Array(&b.Packages),
			&b.Status,
			&errMsg,
			&b.ArtifactSize,
			&objectKey,
			&b.StartedAt,
			&b.CompletedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan build: %w", err)
		}
		b.Error = errMsg.String
		b.ObjectKey = objectKey.String
		builds = append(builds, b)
	}
	return builds, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
