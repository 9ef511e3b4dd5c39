package delivery

import (
	"context"
	"errors"
	"strings"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap/zaptest"
)

type stubDeliverer struct {
	receipt Receipt
	err     error
	calls   int
}

func (s *stubDeliverer) Deliver(ctx context.Context, a Artifact) (Receipt, error) {
	s.calls++
	return s.receipt, s.err
}

type stubAnnouncer struct {
	chatID int64
	text   string
	calls  int
	err    error
}

func (s *stubAnnouncer) Announce(ctx context.Context, chatID int64, text string) error {
	s.calls++
	s.chatID = chatID
	s.text = text
	return s.err
}

func TestAnnouncedDeliverSendsLink(t *testing.T) {
	inner := &stubDeliverer{receipt: Receipt{Backend: "gofile", Location: "https://gofile.io/d/abc"}}
	ann := &stubAnnouncer{}
	d := NewAnnounced(inner, ann, zaptest.NewLogger(t))

	receipt, err := d.Deliver(context.Background(), Artifact{ID: "t1", ChatID: 42, Caption: "Trim complete"})
	if err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	if receipt.Location != "https://gofile.io/d/abc" {
		t.Errorf("receipt = %+v", receipt)
	}
	if ann.calls != 1 || ann.chatID != 42 {
		t.Fatalf("announced %d times to chat %d, want once to 42", ann.calls, ann.chatID)
	}
	if !strings.Contains(ann.text, "https://gofile.io/d/abc") || !strings.Contains(ann.text, "Trim complete") {
		t.Errorf("announcement %q should carry the caption and the link", ann.text)
	}
}

func TestAnnouncedDeliverSkipsOnFailure(t *testing.T) {
	inner := &stubDeliverer{err: errors.New("upload refused")}
	ann := &stubAnnouncer{}
	d := NewAnnounced(inner, ann, zaptest.NewLogger(t))

	if _, err := d.Deliver(context.Background(), Artifact{ChatID: 42}); err == nil {
		t.Fatal("inner failure must propagate")
	}
	if ann.calls != 0 {
		t.Error("no link to announce when delivery failed")
	}
}

func TestAnnouncedDeliverToleratesAnnounceFailure(t *testing.T) {
	inner := &stubDeliverer{receipt: Receipt{Backend: "gofile", Location: "https://gofile.io/d/abc"}}
	ann := &stubAnnouncer{err: errors.New("chat gone")}
	d := NewAnnounced(inner, ann, zaptest.NewLogger(t))

	if _, err := d.Deliver(context.Background(), Artifact{ChatID: 42}); err != nil {
		t.Fatalf("announce failures must not fail the delivery: %v", err)
	}
}

func TestTelegramAnnounce(t *testing.T) {
	fake := &fakeSender{}
	tg := testTelegram(t, fake, 1<<30)

	if err := tg.Announce(context.Background(), 99, "https://gofile.io/d/abc"); err != nil {
		t.Fatalf("Announce: %v", err)
	}
	if len(fake.sent) != 1 {
		t.Fatalf("sent %d messages, want 1", len(fake.sent))
	}
	msg, ok := fake.sent[0].(tgbotapi.MessageConfig)
	if !ok {
		t.Fatalf("sent %T, want MessageConfig", fake.sent[0])
	}
	if msg.ChatID != 99 || msg.Text != "https://gofile.io/d/abc" {
		t.Errorf("message = %+v", msg)
	}
}
