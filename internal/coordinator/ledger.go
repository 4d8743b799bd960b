package coordinator

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/salesinsight/salesinsight/internal/storage"
)

const ledgerTable = "salesinsight_dataset_loads"

// loadedObjects returns object key to ETag for every file already loaded.
func loadedObjects(ctx context.Context, db *sql.DB) (map[string]string, error) {
	rows, err := db.QueryContext(ctx, `SELECT object_key, COALESCE(etag, '') FROM `+ledgerTable)
	if err != nil {
		return nil, fmt.Errorf("query dataset load ledger: %w", err)
	}
	defer func() { _ = rows.Close() }()

	loaded := map[string]string{}
	for rows.Next() {
		var key, etag string
		if err := rows.Scan(&key, &etag); err != nil {
			return nil, fmt.Errorf("scan dataset load ledger: %w", err)
		}
		loaded[key] = etag
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate dataset load ledger: %w", err)
	}
	return loaded, nil
}

func recordLoad(ctx context.Context, tx *sql.Tx, object storage.ObjectInfo, rowCount int64) error {
	_, err := tx.ExecContext(ctx, `
INSERT INTO `+ledgerTable+` (object_key, etag, size_bytes, row_count)
VALUES ($1, $2, $3, $4)`, object.Key, object.ETag, object.Size, rowCount)
	if err != nil {
		return fmt.Errorf("record dataset load %s: %w", object.Key, err)
	}
	return nil
}
