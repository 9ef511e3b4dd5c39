package delivery

import (
	"context"
	"errors"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap/zaptest"
)

type fakeSender struct {
	sent []tgbotapi.Chattable
	err  error
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.sent = append(f.sent, c)
	if f.err != nil {
		return tgbotapi.Message{}, f.err
	}
	return tgbotapi.Message{MessageID: 7}, nil
}

func testTelegram(t *testing.T, fake *fakeSender, maxBytes int64) *Telegram {
	return &Telegram{bot: fake, maxBytes: maxBytes, logger: zaptest.NewLogger(t)}
}

func TestTelegramDeliverVideo(t *testing.T) {
	fake := &fakeSender{}
	tg := testTelegram(t, fake, 1<<30)

	receipt, err := tg.Deliver(context.Background(), Artifact{
		ID:       "task-1",
		Path:     "/work/output.mp4",
		Size:     1024,
		ChatID:   99,
		Caption:  "done",
		Duration: 90 * time.Second,
	})
	if err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	if receipt.Backend != "telegram" {
		t.Errorf("backend = %q, want telegram", receipt.Backend)
	}
	if len(fake.sent) != 1 {
		t.Fatalf("sent %d messages, want 1", len(fake.sent))
	}

	video, ok := fake.sent[0].(tgbotapi.VideoConfig)
	if !ok {
		t.Fatalf("sent %T, want VideoConfig", fake.sent[0])
	}
	if !video.SupportsStreaming {
		t.Error("video should support streaming")
	}
	if video.Duration != 90 {
		t.Errorf("duration = %d, want 90", video.Duration)
	}
	if video.Caption != "done" {
		t.Errorf("caption = %q, want done", video.Caption)
	}
}

func TestTelegramDeliverByExtension(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/work/output.gif", "AnimationConfig"},
		{"/work/output.mp3", "AudioConfig"},
		{"/work/output.jpg", "PhotoConfig"},
		{"/work/output.srt", "DocumentConfig"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			fake := &fakeSender{}
			tg := testTelegram(t, fake, 1<<30)

			if _, err := tg.Deliver(context.Background(), Artifact{Path: tt.path, Size: 10, ChatID: 1}); err != nil {
				t.Fatalf("Deliver: %v", err)
			}

			var got string
			switch fake.sent[0].(type) {
			case tgbotapi.AnimationConfig:
				got = "AnimationConfig"
			case tgbotapi.AudioConfig:
				got = "AudioConfig"
			case tgbotapi.PhotoConfig:
				got = "PhotoConfig"
			case tgbotapi.DocumentConfig:
				got = "DocumentConfig"
			default:
				got = "other"
			}
			if got != tt.want {
				t.Errorf("sent %s, want %s", got, tt.want)
			}
		})
	}
}

func TestTelegramDeliverTooLarge(t *testing.T) {
	fake := &fakeSender{}
	tg := testTelegram(t, fake, 100)

	_, err := tg.Deliver(context.Background(), Artifact{Path: "/work/output.mp4", Size: 101, ChatID: 1})
	if !errors.Is(err, ErrTooLarge) {
		t.Fatalf("err = %v, want ErrTooLarge", err)
	}
	if len(fake.sent) != 0 {
		t.Error("nothing should be sent for an oversized artifact")
	}
}

func TestTelegramDeliverSendError(t *testing.T) {
	fake := &fakeSender{err: errors.New("flood wait")}
	tg := testTelegram(t, fake, 1<<30)

	_, err := tg.Deliver(context.Background(), Artifact{Path: "/work/output.mp4", Size: 10, ChatID: 1})
	if err == nil {
		t.Fatal("expected send error to propagate")
	}
	if errors.Is(err, ErrTooLarge) {
		t.Error("send failures must not look like size failures")
	}
}
