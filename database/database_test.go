package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"
	"time"

	"ecowing/models"
	"ecowing/taxonomy"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jknair0/beforeeach"
	"github.com/shopspring/decimal"
)

var (
	db   *sql.DB
	mock sqlmock.Sqlmock
)

func setUp() {
	db, mock, _ = sqlmock.New()
}

func tearDown() {
	db.Close()
}

var it = beforeeach.Create(setUp, tearDown)

var cols = []string{"id", "ts", "lat", "lng", "location_name", "type", "sub_type", "category", "severity",
	"description", "weight_kg", "cleanup_priority", "media_type", "verified",
	"waste_distribution", "unique_item_count", "bounding_boxes"}

func TestListReports(t *testing.T) {
	it(func() {
		ts := time.Date(2025, 2, 1, 8, 0, 0, 0, time.UTC)
		mock.ExpectQuery("SELECT (.+) FROM waste_reports ORDER BY ts ASC").
			WillReturnRows(sqlmock.NewRows(cols).
				AddRow("r1", ts, 22.3, 114.1, "Bay", "Plastic", "Bottle", "Plastic", "HIGH",
					"bottles", "1.50", "High", "image", true,
					[]byte(`{"Plastic":3,"Glass":-1}`), nil, []byte(`[{"ymin":1,"xmin":2,"ymax":3,"xmax":4,"label":"Bottle"}]`)).
				AddRow("r2", ts.Add(time.Hour), nil, nil, "", "Metal", "", "Metal", "LOW",
					nil, "0.00", "Medium", "video", false,
					nil, 4, nil))

		got, err := New(db).ListReports(context.Background())
		if err != nil {
			t.Fatalf("ListReports() unexpected error: %v", err)
		}
		if len(got) != 2 {
			t.Fatalf("expected 2 reports, got %d", len(got))
		}

		r1 := got[0]
		if r1.ID != "r1" || !r1.HasCoordinates() || *r1.Lat != 22.3 || *r1.Lng != 114.1 {
			t.Errorf("unexpected r1 identity or coordinates: %+v", r1)
		}
		if r1.Severity != taxonomy.High || !r1.EstimatedWeightKg.Equal(decimal.RequireFromString("1.5")) {
			t.Errorf("unexpected r1 severity or weight: %s %s", r1.Severity, r1.EstimatedWeightKg)
		}
		if fmt.Sprintf("%v", r1.WasteDistribution) != "map[Plastic:3]" || r1.UniqueItemCount != nil {
			t.Errorf("unexpected r1 counts: %v %v", r1.WasteDistribution, r1.UniqueItemCount)
		}
		if len(r1.BoundingBoxes) != 1 || r1.BoundingBoxes[0].Label != "Bottle" {
			t.Errorf("unexpected r1 boxes: %v", r1.BoundingBoxes)
		}

		r2 := got[1]
		if r2.HasCoordinates() || r2.WasteDistribution != nil || r2.UniqueItemCount == nil || *r2.UniqueItemCount != 4 {
			t.Errorf("unexpected r2 optionals: %+v", r2)
		}
		if r2.ItemCount() != 4 || r2.Description != "" || r2.MediaType != "video" {
			t.Errorf("unexpected r2 values: %+v", r2)
		}

		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("there were unfulfilled expectations: %s", err)
		}
	})
}

func TestSaveReport(t *testing.T) {
	it(func() {
		lat, lng, n := 22.3, 114.1, 2
		testCases := []struct {
			name   string
			report models.Report
			dist   any
			unique any
			lat    any
		}{
			{
				name: "full report",
				report: models.Report{
					ID: "a", Lat: &lat, Lng: &lng, Severity: taxonomy.Low,
					WasteDistribution: map[string]int{"Wood": 2}, UniqueItemCount: &n,
					EstimatedWeightKg: decimal.NewFromFloat(1.25),
				},
				dist:   `{"Wood":2}`,
				unique: int64(2),
				lat:    22.3,
			}, {
				name:   "optionals stay NULL",
				report: models.Report{ID: "b", Lat: &lat, Severity: taxonomy.Medium},
				dist:   nil,
				unique: nil,
				lat:    nil,
			},
		}

		for _, tc := range testCases {
			mock.ExpectExec("INSERT INTO waste_reports").
				WithArgs(tc.report.ID, sqlmock.AnyArg(), tc.lat, sqlmock.AnyArg(), "", "", "", "", string(tc.report.Severity),
					"", sqlmock.AnyArg(), "", "", false,
					tc.dist, tc.unique, "[]", []byte(nil), "").
				WillReturnResult(sqlmock.NewResult(1, 1))

			if err := New(db).SaveReport(context.Background(), &tc.report, nil, ""); err != nil {
				t.Errorf("%s: unexpected error: %v", tc.name, err)
			}
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("there were unfulfilled expectations: %s", err)
		}
	})
}

func TestGetReportNotFound(t *testing.T) {
	it(func() {
		mock.ExpectQuery("SELECT (.+) FROM waste_reports WHERE id = ?").
			WithArgs("missing").
			WillReturnRows(sqlmock.NewRows(cols))

		_, err := New(db).GetReport(context.Background(), "missing")
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("GetReport() error = %v, want ErrNotFound", err)
		}
	})
}

func TestSetVerifiedAndDelete(t *testing.T) {
	it(func() {
		testCases := []struct {
			name     string
			affected int64
			delete   bool
			expect   error
		}{
			{"verify existing", 1, false, nil},
			{"verify missing", 0, false, ErrNotFound},
			{"delete existing", 1, true, nil},
			{"delete missing", 0, true, ErrNotFound},
		}

		d := New(db)
		for _, tc := range testCases {
			var err error
			if tc.delete {
				mock.ExpectExec("DELETE FROM waste_reports WHERE id = ?").
					WithArgs("r1").
					WillReturnResult(sqlmock.NewResult(0, tc.affected))
				err = d.DeleteReport(context.Background(), "r1")
			} else {
				mock.ExpectExec("UPDATE waste_reports SET verified = ?").
					WithArgs(true, "r1").
					WillReturnResult(sqlmock.NewResult(0, tc.affected))
				err = d.SetVerified(context.Background(), "r1", true)
			}
			if !errors.Is(err, tc.expect) {
				t.Errorf("%s: error = %v, want %v", tc.name, err, tc.expect)
			}
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("there were unfulfilled expectations: %s", err)
		}
	})
}

func TestGetReportMedia(t *testing.T) {
	it(func() {
		mock.ExpectQuery("SELECT media, media_mime FROM waste_reports").
			WithArgs("r1").
			WillReturnRows(sqlmock.NewRows([]string{"media", "media_mime"}).AddRow([]byte{0xff, 0xd8}, "image/jpeg"))
		mock.ExpectQuery("SELECT media, media_mime FROM waste_reports").
			WithArgs("r2").
			WillReturnRows(sqlmock.NewRows([]string{"media", "media_mime"}).AddRow(nil, ""))

		d := New(db)
		data, mime, err := d.GetReportMedia(context.Background(), "r1")
		if err != nil || len(data) != 2 || mime != "image/jpeg" {
			t.Errorf("GetReportMedia(r1) = %v %s %v", data, mime, err)
		}
		if _, _, err := d.GetReportMedia(context.Background(), "r2"); !errors.Is(err, ErrNotFound) {
			t.Errorf("GetReportMedia(r2) error = %v, want ErrNotFound", err)
		}
	})
}

func TestGeocodeCache(t *testing.T) {
	it(func() {
		mock.ExpectQuery("SELECT address FROM geocode_cache").
			WithArgs(22.3, 114.1).
			WillReturnRows(sqlmock.NewRows([]string{"address"}).AddRow("Repulse Bay, Hong Kong"))
		mock.ExpectQuery("SELECT address FROM geocode_cache").
			WithArgs(0.0, 0.0).
			WillReturnRows(sqlmock.NewRows([]string{"address"}))
		mock.ExpectExec("INSERT INTO geocode_cache").
			WithArgs(1.0, 2.0, "Somewhere", sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectExec("DELETE FROM geocode_cache WHERE expires_at").
			WillReturnResult(sqlmock.NewResult(0, 3))

		d := New(db)
		ctx := context.Background()
		addr, ok, err := d.CachedAddress(ctx, 22.3, 114.1)
		if err != nil || !ok || addr != "Repulse Bay, Hong Kong" {
			t.Errorf("CachedAddress() hit = %q %v %v", addr, ok, err)
		}
		if _, ok, err := d.CachedAddress(ctx, 0, 0); err != nil || ok {
			t.Errorf("CachedAddress() miss = %v %v", ok, err)
		}
		if err := d.CacheAddress(ctx, 1, 2, "Somewhere", time.Hour); err != nil {
			t.Errorf("CacheAddress() error = %v", err)
		}
		n, err := d.PurgeExpiredAddresses(ctx)
		if err != nil || n != 3 {
			t.Errorf("PurgeExpiredAddresses() = %d %v", n, err)
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("there were unfulfilled expectations: %s", err)
		}
	})
}

func TestEnsureTablesWidensMediaColumn(t *testing.T) {
	testCases := []struct {
		name     string
		dataType string
		alter    bool
	}{
		{"legacy mediumblob", "mediumblob", true},
		{"already longblob", "longblob", false},
	}
	for _, tc := range testCases {
		it(func() {
			mock.ExpectExec("CREATE TABLE IF NOT EXISTS waste_reports").
				WillReturnResult(sqlmock.NewResult(0, 0))
			mock.ExpectQuery("SELECT DATA_TYPE FROM information_schema.COLUMNS").
				WillReturnRows(sqlmock.NewRows([]string{"DATA_TYPE"}).AddRow(tc.dataType))
			if tc.alter {
				mock.ExpectExec("ALTER TABLE waste_reports MODIFY media LONGBLOB").
					WillReturnResult(sqlmock.NewResult(0, 0))
			}
			mock.ExpectExec("CREATE TABLE IF NOT EXISTS geocode_cache").
				WillReturnResult(sqlmock.NewResult(0, 0))

			if err := New(db).EnsureTables(context.Background()); err != nil {
				t.Errorf("%s: EnsureTables() error = %v", tc.name, err)
			}
			if err := mock.ExpectationsWereMet(); err != nil {
				t.Errorf("%s: there were unfulfilled expectations: %s", tc.name, err)
			}
		})
	}
}
