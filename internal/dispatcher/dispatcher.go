// Package dispatcher delivers a resolved descriptor to a chat, choosing the
// send method by media kind and the configured video size policy.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"path"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/pinfetch/internal/media"
	"github.com/JakeFAU/pinfetch/internal/messages"
	"github.com/JakeFAU/pinfetch/internal/telemetry"
)

// SizePolicy decides what happens to videos the channel may refuse.
type SizePolicy string

// Size policies.
const (
	// PolicyOffload tries the video by URL and hands refusals to the offload worker.
	PolicyOffload SizePolicy = "offload"
	// PolicyDuration sends a direct link for videos longer than MaxVideoDurationMS.
	PolicyDuration SizePolicy = "duration"
)

// Chat actions shown while uploading.
const (
	actionUploadPhoto = "upload_photo"
	actionUploadVideo = "upload_video"
)

// Config controls delivery.
type Config struct {
	SizePolicy         SizePolicy
	MaxVideoDurationMS int64
	// SupportMessage is appended after every delivery; empty disables it.
	SupportMessage string
	// Tracer defaults to the global provider.
	Tracer trace.Tracer
}

// Dispatcher implements the delivery state machine.
type Dispatcher struct {
	cfg       Config
	channel   media.Channel
	offloader media.Offloader
	fetcher   media.Fetcher
	logger    *zap.Logger
}

// New builds a Dispatcher. fetcher downloads image bytes when the channel
// cannot fetch an image URL itself. offloader may be nil under PolicyDuration.
func New(
	cfg Config,
	channel media.Channel,
	offloader media.Offloader,
	fetcher media.Fetcher,
	logger *zap.Logger,
) *Dispatcher {
	if cfg.SizePolicy == "" {
		cfg.SizePolicy = PolicyOffload
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Tracer == nil {
		cfg.Tracer = otel.Tracer("github.com/JakeFAU/pinfetch/internal/dispatcher")
	}
	return &Dispatcher{
		cfg:       cfg,
		channel:   channel,
		offloader: offloader,
		fetcher:   fetcher,
		logger:    logger.Named("dispatcher"),
	}
}

// Deliver performs exactly one terminal delivery for the descriptor and
// returns its outcome.
func (d *Dispatcher) Deliver(
	ctx context.Context,
	chatID int64,
	source media.SourceURL,
	desc media.Descriptor,
) media.Outcome {
	ctx, span := d.cfg.Tracer.Start(ctx, "dispatcher.deliver", trace.WithAttributes(
		attribute.Int64("chat_id", chatID),
		attribute.String("size_policy", string(d.cfg.SizePolicy)),
	))
	defer span.End()

	var outcome media.Outcome
	switch {
	case desc.HasVideo():
		outcome = d.deliverVideo(ctx, chatID, desc)
	case desc.ImageURL != "":
		outcome = d.deliverImage(ctx, chatID, desc)
	default:
		outcome = media.Failed(media.ErrMalformedPage)
	}

	span.SetAttributes(attribute.String("outcome", string(outcome.Kind)))
	telemetry.RecordError(span, outcome.Err)
	if outcome.Succeeded() {
		d.appendSupport(ctx, chatID, source)
	}
	return outcome
}

func (d *Dispatcher) deliverImage(ctx context.Context, chatID int64, desc media.Descriptor) media.Outcome {
	d.action(ctx, chatID, actionUploadPhoto)

	if desc.IsAnimatedImage() {
		if err := d.channel.SendDocumentURL(ctx, chatID, desc.ImageURL); err != nil {
			return media.Failed(rejected(err))
		}
		return media.Outcome{Kind: media.OutcomeAnimatedImage}
	}

	urlErr := d.channel.SendPhotoURL(ctx, chatID, desc.ImageURL)
	if urlErr == nil {
		return media.Outcome{Kind: media.OutcomeImage}
	}
	d.logger.Debug("photo by url refused, uploading bytes",
		zap.Int64("chat_id", chatID),
		zap.Error(urlErr),
	)

	data, err := d.download(ctx, desc.ImageURL)
	if err != nil {
		return media.Failed(rejected(errors.Join(urlErr, err)))
	}
	if err := d.channel.SendPhotoBytes(ctx, chatID, fileName(desc.ImageURL, "image.jpg"), data); err != nil {
		return media.Failed(rejected(err))
	}
	return media.Outcome{Kind: media.OutcomeImage}
}

func (d *Dispatcher) deliverVideo(ctx context.Context, chatID int64, desc media.Descriptor) media.Outcome {
	d.action(ctx, chatID, actionUploadVideo)

	if d.cfg.SizePolicy == PolicyDuration {
		return d.deliverVideoByDuration(ctx, chatID, desc)
	}

	sendErr := d.channel.SendVideoURL(ctx, chatID, desc.VideoURL)
	if sendErr == nil {
		return media.Outcome{Kind: media.OutcomeVideo}
	}
	if d.offloader == nil {
		return media.Failed(fmt.Errorf("%w: no worker configured: %w", media.ErrOffloadFailed, sendErr))
	}

	code, err := d.offloader.Offload(ctx, desc.VideoURL, chatID)
	if err != nil {
		return media.Failed(fmt.Errorf("%w: %w", media.ErrOffloadFailed, err))
	}
	switch code {
	case http.StatusOK:
		return media.Outcome{Kind: media.OutcomeVideoOffloaded}
	case http.StatusCreated:
		return media.Outcome{Kind: media.OutcomeVideoTooLarge}
	default:
		return media.Failed(fmt.Errorf("%w: worker status %d", media.ErrOffloadFailed, code))
	}
}

func (d *Dispatcher) deliverVideoByDuration(ctx context.Context, chatID int64, desc media.Descriptor) media.Outcome {
	if desc.VideoDurationMS > d.cfg.MaxVideoDurationMS {
		return d.tooLarge(ctx, chatID, desc.VideoURL)
	}
	if err := d.channel.SendVideoURL(ctx, chatID, desc.VideoURL); err != nil {
		d.logger.Debug("video by url refused under threshold",
			zap.Int64("chat_id", chatID),
			zap.Int64("duration_ms", desc.VideoDurationMS),
			zap.Error(err),
		)
		return d.tooLarge(ctx, chatID, desc.VideoURL)
	}
	return media.Outcome{Kind: media.OutcomeVideo}
}

func (d *Dispatcher) tooLarge(ctx context.Context, chatID int64, videoURL string) media.Outcome {
	if err := d.channel.SendMessage(ctx, chatID, messages.TooLarge(videoURL), media.FormatMarkdown); err != nil {
		return media.Failed(rejected(err))
	}
	return media.Outcome{Kind: media.OutcomeVideoTooLarge}
}

func (d *Dispatcher) download(ctx context.Context, rawURL string) ([]byte, error) {
	if d.fetcher == nil {
		return nil, errors.New("no fetcher for image bytes")
	}
	resp, err := d.fetcher.Fetch(ctx, media.FetchRequest{URL: rawURL})
	if err != nil {
		return nil, fmt.Errorf("download image: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("download image: status %d", resp.StatusCode)
	}
	return resp.Body, nil
}

func (d *Dispatcher) action(ctx context.Context, chatID int64, action string) {
	if err := d.channel.SendAction(ctx, chatID, action); err != nil {
		d.logger.Debug("chat action failed", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}

func (d *Dispatcher) appendSupport(ctx context.Context, chatID int64, source media.SourceURL) {
	if d.cfg.SupportMessage == "" {
		return
	}
	if err := d.channel.SendMessage(ctx, chatID, d.cfg.SupportMessage, media.FormatMarkdown); err != nil {
		d.logger.Warn("support message failed",
			zap.Int64("chat_id", chatID),
			zap.String("url", string(source)),
			zap.Error(err),
		)
	}
}

func rejected(err error) error {
	if errors.Is(err, media.ErrDeliveryRejected) {
		return err
	}
	return fmt.Errorf("%w: %w", media.ErrDeliveryRejected, err)
}

func fileName(rawURL, fallback string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fallback
	}
	name := path.Base(u.Path)
	if name == "." || name == "/" || name == "" {
		return fallback
	}
	return name
}
