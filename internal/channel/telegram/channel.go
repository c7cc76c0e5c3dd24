// Package telegram adapts the Telegram Bot API to media.Channel.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/pinfetch/internal/media"
)

// sender is the subset of *tgbotapi.BotAPI the channel needs.
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// Channel implements media.Channel on a bot client.
type Channel struct {
	bot    sender
	logger *zap.Logger
}

var _ media.Channel = (*Channel)(nil)

// New wraps an existing bot client.
func New(bot sender, logger *zap.Logger) *Channel {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Channel{bot: bot, logger: logger.Named("telegram")}
}

// NewBot authenticates against the Bot API. endpoint may be empty for the
// public API; otherwise it is a format string like tgbotapi.APIEndpoint.
func NewBot(token, endpoint string, timeout time.Duration) (*tgbotapi.BotAPI, error) {
	if token == "" {
		return nil, errors.New("telegram token must be set")
	}
	if endpoint == "" {
		endpoint = tgbotapi.APIEndpoint
	}
	bot, err := tgbotapi.NewBotAPIWithClient(token, endpoint, &http.Client{Timeout: timeout})
	if err != nil {
		return nil, fmt.Errorf("telegram bot: %w", err)
	}
	return bot, nil
}

// SendDocumentURL sends a file by URL as a document.
func (c *Channel) SendDocumentURL(ctx context.Context, chatID int64, url string) error {
	return c.send(ctx, tgbotapi.NewDocument(chatID, tgbotapi.FileURL(url)))
}

// SendPhotoURL asks Telegram to fetch and send the photo.
func (c *Channel) SendPhotoURL(ctx context.Context, chatID int64, url string) error {
	return c.send(ctx, tgbotapi.NewPhoto(chatID, tgbotapi.FileURL(url)))
}

// SendPhotoBytes uploads the photo.
func (c *Channel) SendPhotoBytes(ctx context.Context, chatID int64, name string, data []byte) error {
	return c.send(ctx, tgbotapi.NewPhoto(chatID, tgbotapi.FileBytes{Name: name, Bytes: data}))
}

// SendVideoURL asks Telegram to fetch and send the video.
func (c *Channel) SendVideoURL(ctx context.Context, chatID int64, url string) error {
	return c.send(ctx, tgbotapi.NewVideo(chatID, tgbotapi.FileURL(url)))
}

// SendVideoBytes uploads the video.
func (c *Channel) SendVideoBytes(ctx context.Context, chatID int64, name string, data []byte) error {
	video := tgbotapi.NewVideo(chatID, tgbotapi.FileBytes{Name: name, Bytes: data})
	video.SupportsStreaming = true
	return c.send(ctx, video)
}

// SendMessage sends text with link previews disabled.
func (c *Channel) SendMessage(ctx context.Context, chatID int64, text string, format media.TextFormat) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.DisableWebPagePreview = true
	if format == media.FormatMarkdown {
		msg.ParseMode = tgbotapi.ModeMarkdown
	}
	return c.send(ctx, msg)
}

// SendAction shows a chat action such as upload_photo.
func (c *Channel) SendAction(ctx context.Context, chatID int64, action string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := c.bot.Request(tgbotapi.NewChatAction(chatID, action)); err != nil {
		return classify(err)
	}
	return nil
}

// RegisterWebhook points the bot at url.
func (c *Channel) RegisterWebhook(url string) error {
	wh, err := tgbotapi.NewWebhook(url)
	if err != nil {
		return fmt.Errorf("webhook config: %w", err)
	}
	if _, err := c.bot.Request(wh); err != nil {
		return fmt.Errorf("set webhook: %w", classify(err))
	}
	c.logger.Info("webhook registered", zap.String("host", wh.URL.Host))
	return nil
}

// send checks ctx first since the Bot API client takes no context; its HTTP
// client timeout bounds the call instead.
func (c *Channel) send(ctx context.Context, msg tgbotapi.Chattable) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := c.bot.Send(msg); err != nil {
		return classify(err)
	}
	return nil
}

// classify maps API-level refusals to media.ErrDeliveryRejected and leaves
// transport errors as they are.
func classify(err error) error {
	var apiErr *tgbotapi.Error
	if errors.As(err, &apiErr) {
		return fmt.Errorf("%w: %d %s", media.ErrDeliveryRejected, apiErr.Code, apiErr.Message)
	}
	return fmt.Errorf("telegram request: %w", err)
}
