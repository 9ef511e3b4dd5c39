package delivery

import (
	"context"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/SunilSharmaNP/fvt/worker/progress"
)

type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Telegram delivers artifacts as chat uploads. Artifacts over the
// configured cap are refused with ErrTooLarge before any bytes move.
type Telegram struct {
	bot      sender
	maxBytes int64
	thumbs   *Thumbnailer
	logger   *zap.Logger
}

func NewTelegram(token string, maxBytes int64, thumbs *Thumbnailer, logger *zap.Logger) (*Telegram, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}
	return &Telegram{bot: bot, maxBytes: maxBytes, thumbs: thumbs, logger: logger}, nil
}

func (t *Telegram) Deliver(ctx context.Context, a Artifact) (Receipt, error) {
	if t.maxBytes > 0 && a.Size > t.maxBytes {
		return Receipt{}, fmt.Errorf("%s exceeds the %s upload cap: %w",
			progress.HumanSize(a.Size), progress.HumanSize(t.maxBytes), ErrTooLarge)
	}
	if err := ctx.Err(); err != nil {
		return Receipt{}, err
	}

	sent, err := t.bot.Send(t.message(ctx, a))
	if err != nil {
		return Receipt{}, fmt.Errorf("telegram send: %w", err)
	}

	t.logger.Info("Delivered artifact",
		zap.String("task_id", a.ID),
		zap.Int64("chat_id", a.ChatID),
		zap.Int("message_id", sent.MessageID))
	return Receipt{
		Backend:  "telegram",
		Location: fmt.Sprintf("chat %d message %d", a.ChatID, sent.MessageID),
	}, nil
}

// Announce sends a plain text message, used to hand over a link when
// the artifact itself went through another backend.
func (t *Telegram) Announce(ctx context.Context, chatID int64, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := t.bot.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	return nil
}

func (t *Telegram) message(ctx context.Context, a Artifact) tgbotapi.Chattable {
	file := tgbotapi.FilePath(a.Path)
	switch {
	case strings.HasSuffix(a.Path, ".gif"):
		msg := tgbotapi.NewAnimation(a.ChatID, file)
		msg.Caption = a.Caption
		return msg
	case strings.HasSuffix(a.Path, ".mp3"):
		msg := tgbotapi.NewAudio(a.ChatID, file)
		msg.Caption = a.Caption
		if a.Duration > 0 {
			msg.Duration = int(a.Duration.Seconds())
		}
		return msg
	case strings.HasSuffix(a.Path, ".jpg"):
		msg := tgbotapi.NewPhoto(a.ChatID, file)
		msg.Caption = a.Caption
		return msg
	case strings.HasSuffix(a.Path, ".srt"):
		msg := tgbotapi.NewDocument(a.ChatID, file)
		msg.Caption = a.Caption
		return msg
	default:
		msg := tgbotapi.NewVideo(a.ChatID, file)
		msg.Caption = a.Caption
		msg.SupportsStreaming = true
		if a.Duration > 0 {
			msg.Duration = int(a.Duration.Seconds())
		}
		if t.thumbs != nil {
			if thumb, err := t.thumbs.Generate(ctx, a.Path); err == nil {
				msg.Thumb = tgbotapi.FilePath(thumb)
			} else {
				t.logger.Warn("Failed to generate thumbnail",
					zap.String("task_id", a.ID),
					zap.Error(err))
			}
		}
		return msg
	}
}
