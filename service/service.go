package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ecowing/config"
	"ecowing/gemini"
	"ecowing/llm"
	"ecowing/models"
	"ecowing/qwen"
	"ecowing/sites"
	"ecowing/stubllm"

	"github.com/apex/log"
	"github.com/google/uuid"
)

var (
	ErrEmptyUpload    = errors.New("empty upload")
	ErrNotAnnotatable = errors.New("report media cannot be annotated")
)

// Store is the report persistence the service needs.
type Store interface {
	SaveReport(ctx context.Context, r *models.Report, media []byte, mediaMIME string) error
	ListReports(ctx context.Context) ([]models.Report, error)
	GetReport(ctx context.Context, id string) (models.Report, error)
	GetReportMedia(ctx context.Context, id string) ([]byte, string, error)
	SetVerified(ctx context.Context, id string, verified bool) error
	DeleteReport(ctx context.Context, id string) error
}

// Publisher sends report events to the message broker.
type Publisher interface {
	Publish(message interface{}) error
}

// Broadcaster pushes live updates to map clients.
type Broadcaster interface {
	BroadcastReport(r models.Report)
	BroadcastSites(views []sites.SiteView)
}

// Geocoder turns coordinates into a place name.
type Geocoder interface {
	Reverse(ctx context.Context, lat, lng float64) (string, error)
}

// URLResolver expands short map links and reads coordinates out of them.
type URLResolver interface {
	Expand(ctx context.Context, u string) (string, error)
	ResolveCoordinates(ctx context.Context, u string) (float64, float64, error)
}

// Options tune the detection pipeline.
type Options struct {
	ImageTargetBytes  int
	ImageMaxDimension int
	TopSitesLimit     int
	DetectionTimeout  time.Duration
	StoreMedia        bool
}

// OptionsFromConfig copies the pipeline settings out of cfg.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		ImageTargetBytes:  cfg.ImageTargetBytes,
		ImageMaxDimension: cfg.ImageMaxDimension,
		TopSitesLimit:     cfg.TopSitesLimit,
		DetectionTimeout:  cfg.DetectionTimeout,
		StoreMedia:        cfg.StoreMedia,
	}
}

// Service ties detection, storage and the live map together.
type Service struct {
	store    Store
	detector llm.Client
	geocoder Geocoder
	resolver URLResolver
	opts     Options

	// Optional; nil disables the stage.
	publisher     Publisher
	broadcaster   Broadcaster
	videoDetector llm.Client

	now   func() time.Time
	newID func() string
}

func New(store Store, detector llm.Client, geocoder Geocoder, resolver URLResolver, opts Options) *Service {
	if opts.TopSitesLimit <= 0 {
		opts.TopSitesLimit = 10
	}
	return &Service{
		store:    store,
		detector: detector,
		geocoder: geocoder,
		resolver: resolver,
		opts:     opts,
		now:      func() time.Time { return time.Now().UTC() },
		newID:    func() string { return uuid.New().String() },
	}
}

// SetPublisher enables report.created events.
func (s *Service) SetPublisher(p Publisher) {
	s.publisher = p
}

// SetBroadcaster enables websocket pushes.
func (s *Service) SetBroadcaster(b Broadcaster) {
	s.broadcaster = b
}

// SetVideoDetector routes video uploads to d instead of the main detector.
func (s *Service) SetVideoDetector(d llm.Client) {
	s.videoDetector = d
}

// NewDetector builds the detection client named by cfg.DetectionProvider.
// A provider without an API key degrades to the stub.
func NewDetector(ctx context.Context, cfg *config.Config) (llm.Client, error) {
	var client llm.Client
	switch cfg.DetectionProvider {
	case "qwen", "":
		if cfg.DashScopeAPIKey == "" {
			log.Warn("DASHSCOPE_API_KEY is not set, using the stub detector")
			client = stubllm.NewClient()
			break
		}
		client = qwen.NewClient(cfg.DashScopeAPIKey, cfg.QwenBaseURL, cfg.QwenModel)
	case "gemini":
		if cfg.GeminiAPIKey == "" {
			log.Warn("GEMINI_API_KEY is not set, using the stub detector")
			client = stubllm.NewClient()
			break
		}
		g, err := gemini.NewClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			return nil, fmt.Errorf("failed to create gemini client: %w", err)
		}
		client = g
	case "stub":
		client = stubllm.NewClient()
	default:
		return nil, fmt.Errorf("unknown detection provider %q", cfg.DetectionProvider)
	}
	log.WithField("provider", client.SourceName()).Info("detection provider selected")
	return client, nil
}

// NewVideoDetector returns a Gemini client for video uploads when the main
// provider is Qwen, which only takes images, and a Gemini key is configured.
// It returns nil when no separate video detector is needed.
func NewVideoDetector(ctx context.Context, cfg *config.Config) (llm.Client, error) {
	if cfg.DetectionProvider != "qwen" && cfg.DetectionProvider != "" {
		return nil, nil
	}
	if cfg.DashScopeAPIKey == "" || cfg.GeminiAPIKey == "" {
		return nil, nil
	}
	g, err := gemini.NewClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini video client: %w", err)
	}
	log.WithField("provider", g.SourceName()).Info("video detection provider selected")
	return g, nil
}
