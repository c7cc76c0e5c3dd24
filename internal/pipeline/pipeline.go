// Package pipeline runs one inbound chat request end to end: URL extraction,
// cache lookup, resolution, page fetch, state extraction, delivery, and the
// outcome event.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/pinfetch/internal/headless/detector"
	"github.com/JakeFAU/pinfetch/internal/logging"
	"github.com/JakeFAU/pinfetch/internal/media"
	"github.com/JakeFAU/pinfetch/internal/messages"
	"github.com/JakeFAU/pinfetch/internal/metrics"
	"github.com/JakeFAU/pinfetch/internal/resolver"
	"github.com/JakeFAU/pinfetch/internal/telemetry"
)

const tracerName = "github.com/JakeFAU/pinfetch/internal/pipeline"

// DefaultTopic receives outcome events when Config.Topic is empty.
const DefaultTopic = "pinfetch-outcomes"

// Resolver expands a raw link to a provider pin URL.
type Resolver interface {
	Resolve(ctx context.Context, rawURL string) (string, error)
}

// Extractor turns a page into a descriptor.
type Extractor interface {
	Extract(page []byte) (media.Descriptor, string, error)
}

// Deliverer sends a descriptor to a chat.
type Deliverer interface {
	Deliver(ctx context.Context, chatID int64, source media.SourceURL, desc media.Descriptor) media.Outcome
}

// Config tunes the pipeline.
type Config struct {
	CacheTTL          time.Duration
	Topic             string
	SupportChannelURL string
}

// Deps are the collaborators. Headless and Detector are optional; Publisher
// and Logger default to no-ops, Tracer to the global provider.
type Deps struct {
	Cache      media.Cache
	Resolver   Resolver
	Fetcher    media.Fetcher
	Headless   media.Fetcher
	Detector   media.PromotionDetector
	Extractor  Extractor
	Dispatcher Deliverer
	Channel    media.Channel
	Publisher  media.Publisher
	Logger     *zap.Logger
	Tracer     trace.Tracer
}

// Result summarizes a handled request.
type Result struct {
	SourceURL media.SourceURL
	Outcome   media.Outcome
	CacheHit  bool
}

// Pipeline is safe for concurrent use; all state lives in its collaborators.
type Pipeline struct {
	cfg    Config
	deps   Deps
	logger *zap.Logger
}

// New validates deps and builds a Pipeline.
func New(cfg Config, deps Deps) (*Pipeline, error) {
	switch {
	case deps.Cache == nil:
		return nil, errors.New("pipeline: cache is required")
	case deps.Resolver == nil:
		return nil, errors.New("pipeline: resolver is required")
	case deps.Fetcher == nil:
		return nil, errors.New("pipeline: fetcher is required")
	case deps.Extractor == nil:
		return nil, errors.New("pipeline: extractor is required")
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = time.Hour
	}
	if cfg.Topic == "" {
		cfg.Topic = DefaultTopic
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Tracer == nil {
		deps.Tracer = otel.Tracer(tracerName)
	}
	return &Pipeline{cfg: cfg, deps: deps, logger: deps.Logger.Named("pipeline")}, nil
}

// Handle runs the request and replies to the chat. Text without a link gets
// an invalid-url reply and a zero Result.
func (p *Pipeline) Handle(ctx context.Context, req media.Request) Result {
	ctx, span := p.deps.Tracer.Start(ctx, "pipeline.handle", trace.WithAttributes(
		attribute.String("request_id", req.RequestID),
		attribute.Int64("chat_id", req.ChatID),
	))
	defer span.End()

	logger := logging.ForRequest(p.logger, req)
	if p.deps.Dispatcher == nil || p.deps.Channel == nil {
		logger.Error("pipeline has no delivery collaborators")
		return Result{Outcome: media.Failed(errors.New("delivery not configured"))}
	}

	raw, err := resolver.ExtractURL(req.Text)
	if errors.Is(err, media.ErrNotFound) {
		logger.Info("no url in message")
		span.SetAttributes(attribute.Bool("url_found", false))
		p.reply(ctx, logger, req.ChatID, messages.InvalidURL(req.Text), media.FormatPlain)
		return Result{}
	}
	source := media.SourceURL(raw)
	span.SetAttributes(attribute.String("url", raw))
	logger = logger.With(zap.String("url", raw))

	result := Result{SourceURL: source}
	desc, hit, err := p.describe(ctx, logger, source)
	result.CacheHit = hit
	if err != nil {
		result.Outcome = media.Failed(err)
	} else {
		result.Outcome = p.deps.Dispatcher.Deliver(ctx, req.ChatID, source, desc)
	}

	if !result.Outcome.Succeeded() {
		logger.Error("request failed", zap.Error(result.Outcome.Err))
		text, format := failureReply(raw, result.Outcome.Err, p.cfg.SupportChannelURL)
		p.reply(ctx, logger, req.ChatID, text, format)
	} else {
		logger.Info("media delivered",
			zap.String("outcome", string(result.Outcome.Kind)),
			zap.Bool("cache_hit", hit),
		)
	}

	span.SetAttributes(
		attribute.String("outcome", string(result.Outcome.Kind)),
		attribute.Bool("cache_hit", hit),
	)
	telemetry.RecordError(span, result.Outcome.Err)
	metrics.ObserveOutcome(string(result.Outcome.Kind))
	p.publish(ctx, logger, req, result)
	return result
}

// Describe resolves text to a descriptor without delivering it.
func (p *Pipeline) Describe(ctx context.Context, text string) (media.SourceURL, media.Descriptor, error) {
	raw, err := resolver.ExtractURL(text)
	if err != nil {
		return "", media.Descriptor{}, err
	}
	source := media.SourceURL(raw)
	desc, _, err := p.describe(ctx, p.logger.With(zap.String("url", raw)), source)
	return source, desc, err
}

// describe consults the cache first. Cached descriptors without a video are
// resolved again.
func (p *Pipeline) describe(
	ctx context.Context,
	logger *zap.Logger,
	source media.SourceURL,
) (media.Descriptor, bool, error) {
	ctx, span := p.deps.Tracer.Start(ctx, "pipeline.describe")
	defer span.End()

	cached, ok, err := p.deps.Cache.Get(ctx, source)
	switch {
	case err != nil:
		metrics.ObserveCacheLookup(metrics.CacheError)
		logger.Warn("cache read failed", zap.Error(err))
	case !ok:
		metrics.ObserveCacheLookup(metrics.CacheMiss)
	case !cached.HasVideo():
		metrics.ObserveCacheLookup(metrics.CacheIncomplete)
	default:
		metrics.ObserveCacheLookup(metrics.CacheHit)
		span.SetAttributes(attribute.Bool("cache_hit", true))
		logger.Info("cache used")
		return cached, true, nil
	}
	span.SetAttributes(attribute.Bool("cache_hit", false))

	desc, err := p.resolve(ctx, logger, string(source))
	if err != nil {
		metrics.ObserveResolveFailure(reasonLabel(err))
		telemetry.RecordError(span, err)
		return media.Descriptor{}, false, err
	}
	if err := p.deps.Cache.Put(ctx, source, desc, p.cfg.CacheTTL); err != nil {
		logger.Warn("cache write failed", zap.Error(err))
	}
	return desc, false, nil
}

func (p *Pipeline) resolve(ctx context.Context, logger *zap.Logger, raw string) (desc media.Descriptor, err error) {
	ctx, span := p.deps.Tracer.Start(ctx, "pipeline.resolve")
	defer func() {
		telemetry.RecordError(span, err)
		span.End()
	}()

	pinURL, err := p.deps.Resolver.Resolve(ctx, raw)
	if err != nil {
		return media.Descriptor{}, err
	}
	span.SetAttributes(attribute.String("pin_url", pinURL))

	resp, err := p.fetch(ctx, "pipeline.fetch", p.deps.Fetcher, pinURL)
	if err != nil {
		return media.Descriptor{}, fmt.Errorf("%w: fetch page: %w", media.ErrInvalidURL, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return media.Descriptor{}, fmt.Errorf("%w: page status %d", media.ErrInvalidURL, resp.StatusCode)
	}

	resp = p.maybePromote(ctx, logger, pinURL, resp)

	desc, _, err = p.deps.Extractor.Extract(resp.Body)
	if err != nil {
		return media.Descriptor{}, fmt.Errorf("extract %s: %w", pinURL, err)
	}
	span.SetAttributes(attribute.Bool("has_video", desc.HasVideo()))
	return desc, nil
}

// fetch wraps one page fetch in a span named name.
func (p *Pipeline) fetch(ctx context.Context, name string, fetcher media.Fetcher, pageURL string) (media.FetchResponse, error) {
	ctx, span := p.deps.Tracer.Start(ctx, name, trace.WithAttributes(attribute.String("url", pageURL)))
	defer span.End()

	resp, err := fetcher.Fetch(ctx, media.FetchRequest{URL: pageURL})
	if err != nil {
		telemetry.RecordError(span, err)
		return resp, err
	}
	span.SetAttributes(attribute.Int("status_code", resp.StatusCode))
	return resp, nil
}

func (p *Pipeline) maybePromote(
	ctx context.Context,
	logger *zap.Logger,
	pinURL string,
	resp media.FetchResponse,
) media.FetchResponse {
	if p.deps.Headless == nil || p.deps.Detector == nil || !p.deps.Detector.ShouldPromote(resp) {
		return resp
	}
	metrics.ObserveHeadlessPromotion()
	logger.Info("promoting to headless", zap.Bool("app_shell", detector.AppShell(resp.Body)))
	rendered, err := p.fetch(ctx, "pipeline.render", p.deps.Headless, pinURL)
	if err != nil {
		logger.Warn("headless fetch failed, using plain page", zap.Error(err))
		return resp
	}
	logger.Debug("page rendered headless", zap.Duration("duration", rendered.Duration))
	return rendered
}

func (p *Pipeline) reply(ctx context.Context, logger *zap.Logger, chatID int64, text string, format media.TextFormat) {
	if err := p.deps.Channel.SendMessage(ctx, chatID, text, format); err != nil {
		logger.Warn("reply failed", zap.Error(err))
	}
}

func (p *Pipeline) publish(ctx context.Context, logger *zap.Logger, req media.Request, result Result) {
	if p.deps.Publisher == nil {
		return
	}
	event := media.Event{
		RequestID: req.RequestID,
		ChatID:    req.ChatID,
		SourceURL: string(result.SourceURL),
		Outcome:   string(result.Outcome.Kind),
		Reason:    result.Outcome.Reason(),
		CacheHit:  result.CacheHit,
	}
	if _, err := p.deps.Publisher.Publish(ctx, p.cfg.Topic, event); err != nil {
		logger.Warn("outcome publish failed", zap.Error(err))
	}
}

// failureReply picks the user-facing text for a failed request.
func failureReply(raw string, err error, supportChannelURL string) (string, media.TextFormat) {
	switch {
	case errors.Is(err, media.ErrInvalidProviderURL):
		return messages.NotProvider(raw), media.FormatPlain
	case errors.Is(err, media.ErrInvalidURL), errors.Is(err, media.ErrMalformedPage):
		return messages.InvalidURL(raw), media.FormatPlain
	default:
		return messages.Internal(raw, supportChannelURL), media.FormatMarkdown
	}
}

func reasonLabel(err error) string {
	switch {
	case errors.Is(err, media.ErrInvalidProviderURL):
		return "invalid_provider_url"
	case errors.Is(err, media.ErrInvalidURL):
		return "invalid_url"
	case errors.Is(err, media.ErrMalformedPage):
		return "malformed_page"
	default:
		return "other"
	}
}
