package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"ecowing/config"

	"github.com/apex/log"
	_ "github.com/go-sql-driver/mysql"
)

var ErrNotFound = errors.New("not found")

const maxPingWait = 30 * time.Second

// Database wraps the MySQL connection used for reports and the geocode cache.
type Database struct {
	db *sql.DB
}

// New wraps an already opened connection.
func New(db *sql.DB) *Database {
	return &Database{db: db}
}

// NewDatabase connects to MySQL, retrying with exponential backoff until the
// server answers or ctx is done, and makes sure the tables exist.
func NewDatabase(ctx context.Context, cfg *config.Config) (*Database, error) {
	db, err := sql.Open("mysql", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	waitInterval := 1 * time.Second
	for {
		err := db.PingContext(ctx)
		if err == nil {
			break
		}
		log.Warnf("Database connection failed, retrying in %v: %v", waitInterval, err)
		select {
		case <-ctx.Done():
			db.Close()
			return nil, fmt.Errorf("database not reachable: %w", ctx.Err())
		case <-time.After(waitInterval):
		}
		if waitInterval < maxPingWait {
			waitInterval *= 2
		}
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	d := New(db)
	if err := d.EnsureTables(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return d, nil
}

// Close closes the database connection
func (d *Database) Close() error {
	return d.db.Close()
}

// EnsureTables creates waste_reports and geocode_cache if they don't exist.
func (d *Database) EnsureTables(ctx context.Context) error {
	if _, err := d.db.ExecContext(ctx, createReportsTable); err != nil {
		return fmt.Errorf("failed to create waste_reports table: %w", err)
	}
	if err := d.widenMediaColumn(ctx); err != nil {
		return err
	}
	if _, err := d.db.ExecContext(ctx, createGeocodeCacheTable); err != nil {
		return fmt.Errorf("failed to create geocode_cache table: %w", err)
	}
	log.Info("waste_reports and geocode_cache tables verified")
	return nil
}

// widenMediaColumn upgrades tables created with a MEDIUMBLOB media column,
// which capped stored uploads at 16MiB.
func (d *Database) widenMediaColumn(ctx context.Context) error {
	var dataType string
	err := d.db.QueryRowContext(ctx, `
		SELECT DATA_TYPE FROM information_schema.COLUMNS
		WHERE TABLE_SCHEMA = DATABASE() AND TABLE_NAME = 'waste_reports' AND COLUMN_NAME = 'media'`).Scan(&dataType)
	if err != nil {
		return fmt.Errorf("failed to inspect waste_reports.media: %w", err)
	}
	if dataType == "longblob" {
		return nil
	}
	if _, err := d.db.ExecContext(ctx, "ALTER TABLE waste_reports MODIFY media LONGBLOB NULL"); err != nil {
		return fmt.Errorf("failed to widen waste_reports.media: %w", err)
	}
	log.WithField("from", dataType).Info("widened waste_reports.media to LONGBLOB")
	return nil
}

const createReportsTable = `
	CREATE TABLE IF NOT EXISTS waste_reports (
		id VARCHAR(36) NOT NULL PRIMARY KEY,
		ts TIMESTAMP(3) NOT NULL DEFAULT CURRENT_TIMESTAMP(3),
		lat DOUBLE NULL,
		lng DOUBLE NULL,
		location_name VARCHAR(255) NOT NULL DEFAULT '',
		type VARCHAR(64) NOT NULL DEFAULT '',
		sub_type VARCHAR(128) NOT NULL DEFAULT '',
		category VARCHAR(64) NOT NULL DEFAULT '',
		severity VARCHAR(16) NOT NULL DEFAULT '',
		description TEXT,
		weight_kg DECIMAL(10,2) NOT NULL DEFAULT 0,
		cleanup_priority VARCHAR(16) NOT NULL DEFAULT '',
		media_type VARCHAR(16) NOT NULL DEFAULT 'image',
		verified BOOLEAN NOT NULL DEFAULT FALSE,
		waste_distribution JSON NULL,
		unique_item_count INT NULL,
		bounding_boxes JSON NULL,
		media LONGBLOB NULL,
		media_mime VARCHAR(64) NOT NULL DEFAULT '',
		INDEX idx_waste_reports_ts (ts),
		INDEX idx_waste_reports_location (location_name)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci`

const createGeocodeCacheTable = `
	CREATE TABLE IF NOT EXISTS geocode_cache (
		lat_grid DOUBLE NOT NULL,
		lng_grid DOUBLE NOT NULL,
		address VARCHAR(512) NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		expires_at TIMESTAMP NOT NULL,
		PRIMARY KEY (lat_grid, lng_grid),
		INDEX idx_geocode_cache_expires (expires_at)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci`
