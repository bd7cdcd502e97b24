package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"ecowing/imaging"
	"ecowing/llm"
	"ecowing/metrics"
	"ecowing/models"
	"ecowing/parser"
	"ecowing/rabbitmq"
	"ecowing/stubllm"
	"ecowing/taxonomy"

	"github.com/apex/log"
	"github.com/shopspring/decimal"
)

const unknownLocation = "Unknown"

// Detect runs one upload through compression, location lookup and waste
// detection, then stores and announces the resulting report. A failing
// provider never fails the upload: the backup-mode result is used instead.
func (s *Service) Detect(ctx context.Context, u *models.Upload) (*models.DetectionResult, models.Report, error) {
	if u == nil || len(u.Data) == 0 {
		return nil, models.Report{}, ErrEmptyUpload
	}

	media := llm.Media{Data: u.Data, MIMEType: u.ContentType}
	if !u.IsVideo() {
		media = s.compress(media)
	}

	if u.Lat == nil || u.Lng == nil {
		if lat, lng, err := imaging.ExtractGPS(u.Data); err == nil {
			u.Lat, u.Lng = &lat, &lng
			log.WithFields(log.Fields{"lat": lat, "lng": lng}).Info("using EXIF GPS position")
		}
	}

	location := s.locationName(ctx, u)

	det := s.analyze(ctx, media)
	det.ID = s.newID()
	det.EstimatedWeightKg = decimal.NewFromFloat(det.EstimatedWeightKg).Round(2).InexactFloat64()
	det.CleanupPriority = taxonomy.CleanupPriority(det.Severity)

	report := det.ToReport(u, location)

	var stored []byte
	var storedMIME string
	if s.opts.StoreMedia {
		stored, storedMIME = media.Data, media.MIMEType
	}
	if err := s.save(ctx, &report, stored, storedMIME); err != nil {
		return nil, models.Report{}, fmt.Errorf("failed to save report: %w", err)
	}
	metrics.ReportsStoredTotal.Inc()

	if s.publisher != nil {
		if err := s.publisher.Publish(rabbitmq.NewReportCreated(&report)); err != nil {
			log.WithError(err).WithField("report_id", report.ID).Warn("failed to publish report.created")
		}
	}
	s.announce(ctx, report)

	return det, report, nil
}

// save stores the report with its media. When the media is rejected the
// report is stored without it, so a detection is never lost to a blob limit.
func (s *Service) save(ctx context.Context, r *models.Report, media []byte, mime string) error {
	err := s.store.SaveReport(ctx, r, media, mime)
	if err == nil || media == nil {
		return err
	}
	log.WithError(err).WithFields(log.Fields{
		"report_id": r.ID,
		"size":      len(media),
	}).Warn("failed to store report media, saving report without it")
	return s.store.SaveReport(ctx, r, nil, "")
}

func (s *Service) compress(m llm.Media) llm.Media {
	out, err := imaging.Compress(m.Data, s.opts.ImageTargetBytes, s.opts.ImageMaxDimension)
	if err != nil {
		log.WithError(err).Warn("image compression failed, sending original")
		return m
	}
	if !bytes.Equal(out, m.Data) {
		return llm.Media{Data: out, MIMEType: "image/jpeg"}
	}
	return m
}

func (s *Service) locationName(ctx context.Context, u *models.Upload) string {
	if name := strings.TrimSpace(u.LocationName); name != "" {
		return name
	}
	if u.Lat == nil || u.Lng == nil || s.geocoder == nil {
		return unknownLocation
	}
	name, err := s.geocoder.Reverse(ctx, *u.Lat, *u.Lng)
	if err != nil || strings.TrimSpace(name) == "" {
		log.WithError(err).Warn("reverse geocoding failed")
		return unknownLocation
	}
	return name
}

func (s *Service) detectorFor(media llm.Media) llm.Client {
	if media.IsVideo() && s.videoDetector != nil {
		return s.videoDetector
	}
	return s.detector
}

func (s *Service) analyze(ctx context.Context, media llm.Media) *models.DetectionResult {
	detector := s.detectorFor(media)
	source := detector.SourceName()
	now := s.now()

	dctx := ctx
	if s.opts.DetectionTimeout > 0 {
		var cancel context.CancelFunc
		dctx, cancel = context.WithTimeout(ctx, s.opts.DetectionTimeout)
		defer cancel()
	}

	start := time.Now()
	det, err := runDetector(dctx, detector, media, now)
	metrics.DetectionDurationSeconds.WithLabelValues(source).Observe(time.Since(start).Seconds())

	if err != nil {
		outcome := "fallback"
		if errors.Is(err, llm.ErrUnsupportedMedia) {
			outcome = "rejected"
		}
		metrics.DetectionsTotal.WithLabelValues(source, outcome).Inc()
		metrics.FallbacksTotal.Inc()
		log.WithError(err).WithField("source", source).Warn("detection failed, using backup mode")
		return stubllm.Fallback(err, now)
	}

	metrics.DetectionsTotal.WithLabelValues(source, "ok").Inc()
	det.Source = source
	return det
}

func runDetector(ctx context.Context, detector llm.Client, media llm.Media, now time.Time) (*models.DetectionResult, error) {
	raw, err := detector.Analyze(ctx, media, llm.PromptFor(media))
	if err != nil {
		return nil, err
	}
	return parser.ParseDetection(raw, now)
}

// announce pushes the new report and the refreshed ranking to map clients.
func (s *Service) announce(ctx context.Context, r models.Report) {
	if s.broadcaster == nil {
		return
	}
	s.broadcaster.BroadcastReport(r)

	top, err := s.Sites(ctx, models.Filter{}, s.opts.TopSitesLimit)
	if err != nil {
		log.WithError(err).Warn("failed to refresh top sites")
		return
	}
	s.broadcaster.BroadcastSites(top)
}
