package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// CachedAddress returns the unexpired address stored for a grid cell.
func (d *Database) CachedAddress(ctx context.Context, latGrid, lngGrid float64) (string, bool, error) {
	var address string
	err := d.db.QueryRowContext(ctx, `
		SELECT address FROM geocode_cache
		WHERE lat_grid = ? AND lng_grid = ? AND expires_at > NOW()`,
		latGrid, lngGrid).Scan(&address)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read geocode cache: %w", err)
	}
	return address, true, nil
}

// CacheAddress stores or refreshes the address for a grid cell.
func (d *Database) CacheAddress(ctx context.Context, latGrid, lngGrid float64, address string, ttl time.Duration) error {
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO geocode_cache (lat_grid, lng_grid, address, expires_at)
		VALUES (?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			address = VALUES(address),
			expires_at = VALUES(expires_at)`,
		latGrid, lngGrid, address, time.Now().Add(ttl))
	if err != nil {
		return fmt.Errorf("failed to write geocode cache: %w", err)
	}
	return nil
}

// PurgeExpiredAddresses deletes expired cache rows and returns how many went.
func (d *Database) PurgeExpiredAddresses(ctx context.Context) (int64, error) {
	res, err := d.db.ExecContext(ctx, `DELETE FROM geocode_cache WHERE expires_at < NOW()`)
	if err != nil {
		return 0, fmt.Errorf("failed to purge geocode cache: %w", err)
	}
	return res.RowsAffected()
}
