package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"ecowing/models"
	"ecowing/taxonomy"
)

const reportColumns = `id, ts, lat, lng, location_name, type, sub_type, category, severity,
	description, weight_kg, cleanup_priority, media_type, verified,
	waste_distribution, unique_item_count, bounding_boxes`

type rowScanner interface {
	Scan(dest ...any) error
}

// SaveReport inserts a report together with its media bytes. media may be nil.
func (d *Database) SaveReport(ctx context.Context, r *models.Report, media []byte, mediaMIME string) error {
	var dist any
	if r.WasteDistribution != nil {
		b, err := json.Marshal(r.WasteDistribution)
		if err != nil {
			return fmt.Errorf("failed to marshal waste distribution: %w", err)
		}
		dist = string(b)
	}
	boxes := r.BoundingBoxes
	if boxes == nil {
		boxes = []models.BoundingBox{}
	}
	boxesJSON, err := json.Marshal(boxes)
	if err != nil {
		return fmt.Errorf("failed to marshal bounding boxes: %w", err)
	}
	var unique any
	if r.UniqueItemCount != nil {
		unique = *r.UniqueItemCount
	}
	var lat, lng any
	if r.HasCoordinates() {
		lat, lng = *r.Lat, *r.Lng
	}

	_, err = d.db.ExecContext(ctx, `
		INSERT INTO waste_reports (`+reportColumns+`, media, media_mime)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Timestamp, lat, lng, r.LocationName, r.Type, r.SubType, r.Category, string(r.Severity),
		r.Description, r.EstimatedWeightKg, r.CleanupPriority, r.MediaType, r.Verified,
		dist, unique, string(boxesJSON), media, mediaMIME,
	)
	if err != nil {
		return fmt.Errorf("failed to insert report %s: %w", r.ID, err)
	}
	return nil
}

// ListReports returns every report in insertion time order. Site aggregation
// depends on this order.
func (d *Database) ListReports(ctx context.Context) ([]models.Report, error) {
	rows, err := d.db.QueryContext(ctx, `SELECT `+reportColumns+` FROM waste_reports ORDER BY ts ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query reports: %w", err)
	}
	defer rows.Close()

	reports := make([]models.Report, 0)
	for rows.Next() {
		r, err := scanReport(rows)
		if err != nil {
			return nil, err
		}
		reports = append(reports, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate reports: %w", err)
	}
	return reports, nil
}

func (d *Database) GetReport(ctx context.Context, id string) (models.Report, error) {
	row := d.db.QueryRowContext(ctx, `SELECT `+reportColumns+` FROM waste_reports WHERE id = ?`, id)
	r, err := scanReport(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Report{}, ErrNotFound
	}
	return r, err
}

// GetReportMedia returns the stored upload bytes and their MIME type.
func (d *Database) GetReportMedia(ctx context.Context, id string) ([]byte, string, error) {
	var media []byte
	var mime string
	err := d.db.QueryRowContext(ctx, `SELECT media, media_mime FROM waste_reports WHERE id = ?`, id).Scan(&media, &mime)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, "", ErrNotFound
	}
	if err != nil {
		return nil, "", fmt.Errorf("failed to read media for %s: %w", id, err)
	}
	if len(media) == 0 {
		return nil, "", ErrNotFound
	}
	return media, mime, nil
}

func (d *Database) SetVerified(ctx context.Context, id string, verified bool) error {
	res, err := d.db.ExecContext(ctx, `UPDATE waste_reports SET verified = ? WHERE id = ?`, verified, id)
	if err != nil {
		return fmt.Errorf("failed to update report %s: %w", id, err)
	}
	return expectRow(res)
}

func (d *Database) DeleteReport(ctx context.Context, id string) error {
	res, err := d.db.ExecContext(ctx, `DELETE FROM waste_reports WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete report %s: %w", id, err)
	}
	return expectRow(res)
}

func expectRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func scanReport(s rowScanner) (models.Report, error) {
	var (
		r        models.Report
		lat, lng sql.NullFloat64
		severity string
		desc     sql.NullString
		dist     []byte
		unique   sql.NullInt64
		boxes    []byte
	)
	err := s.Scan(&r.ID, &r.Timestamp, &lat, &lng, &r.LocationName, &r.Type, &r.SubType, &r.Category, &severity,
		&desc, &r.EstimatedWeightKg, &r.CleanupPriority, &r.MediaType, &r.Verified,
		&dist, &unique, &boxes)
	if errors.Is(err, sql.ErrNoRows) {
		return r, err
	}
	if err != nil {
		return r, fmt.Errorf("failed to scan report: %w", err)
	}

	if lat.Valid && lng.Valid {
		r.Lat, r.Lng = &lat.Float64, &lng.Float64
	}
	r.Severity = taxonomy.Severity(severity)
	r.Description = desc.String
	if unique.Valid && unique.Int64 > 0 {
		n := int(unique.Int64)
		r.UniqueItemCount = &n
	}
	if len(dist) > 0 && string(dist) != "null" {
		var raw map[string]int
		if err := json.Unmarshal(dist, &raw); err != nil {
			return r, fmt.Errorf("bad waste_distribution for %s: %w", r.ID, err)
		}
		r.WasteDistribution = models.CleanDistribution(raw)
	}
	if len(boxes) > 0 && string(boxes) != "null" {
		if err := json.Unmarshal(boxes, &r.BoundingBoxes); err != nil {
			return r, fmt.Errorf("bad bounding_boxes for %s: %w", r.ID, err)
		}
	}
	return r, nil
}
