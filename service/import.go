package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"ecowing/database"
	"ecowing/models"

	"github.com/apex/log"
	"github.com/google/uuid"
)

// Import loads reports from a JSON array in the history wire format, such as
// a data.json kept by the earlier file backed deployment. Reports without an
// id get one derived from their content and stored ids are skipped, so the
// same file can be imported again. Media is not part of the format.
func (s *Service) Import(ctx context.Context, r io.Reader) (int, error) {
	var reports []models.Report
	if err := json.NewDecoder(r).Decode(&reports); err != nil {
		return 0, fmt.Errorf("failed to decode history: %w", err)
	}

	imported := 0
	for i := range reports {
		report := &reports[i]
		if report.ID == "" {
			b, err := json.Marshal(report)
			if err != nil {
				return imported, fmt.Errorf("failed to derive report id: %w", err)
			}
			report.ID = uuid.NewSHA1(uuid.NameSpaceOID, b).String()
		}
		if _, err := s.store.GetReport(ctx, report.ID); err == nil {
			continue
		} else if !errors.Is(err, database.ErrNotFound) {
			return imported, fmt.Errorf("failed to look up report %s: %w", report.ID, err)
		}
		if report.Timestamp.IsZero() {
			report.Timestamp = s.now()
		}
		if err := s.store.SaveReport(ctx, report, nil, ""); err != nil {
			return imported, fmt.Errorf("failed to import report %s: %w", report.ID, err)
		}
		imported++
	}

	log.WithFields(log.Fields{"read": len(reports), "imported": imported}).Info("history import finished")
	if imported > 0 {
		s.refreshSites(ctx)
	}
	return imported, nil
}
