package alerting

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func sampleNote() Notification {
	return Notification{
		Job:       "refresh",
		StartedAt: time.Date(2024, 3, 8, 22, 30, 0, 0, time.UTC),
		Duration:  95 * time.Second,
		Succeeded: 18,
		Failures:  []Failure{{Unit: "macro:inflation", Error: "fetch fred CPIAUCSL: timeout"}},
	}
}

func TestTelegramNotifierSuccess(t *testing.T) {
	received := make(map[string]string)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "sendMessage") {
			t.Fatalf("路径应包含 sendMessage, 实际 %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Fatalf("解析请求体失败: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
	}))
	defer srv.Close()

	notifier := NewTelegramNotifier("token", "chat", srv.URL, time.Second, testLogger())
	if err := notifier.Notify(context.Background(), sampleNote()); err != nil {
		t.Fatalf("Telegram Notify 应成功: %v", err)
	}

	if received["chat_id"] != "chat" {
		t.Fatalf("chat_id 不正确: %#v", received)
	}
	if !strings.Contains(received["text"], "macro:inflation") {
		t.Fatalf("text 应包含失败单元: %q", received["text"])
	}
}

func TestTelegramNotifierError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": false})
	}))
	defer srv.Close()

	notifier := NewTelegramNotifier("token", "chat", srv.URL, time.Second, testLogger())
	if err := notifier.Notify(context.Background(), sampleNote()); err == nil {
		t.Fatal("ok=false 应报错")
	}
}

type recorder struct{ notes []Notification }

func (r *recorder) Notify(_ context.Context, n Notification) error {
	r.notes = append(r.notes, n)
	return nil
}

func TestFilterOnlyFailures(t *testing.T) {
	rec := &recorder{}
	f := Filter{Next: rec, OnlyFailures: true}

	ok := sampleNote()
	ok.Failures = nil
	_ = f.Notify(context.Background(), ok)
	_ = f.Notify(context.Background(), sampleNote())

	if len(rec.notes) != 1 || !rec.notes[0].Failed() {
		t.Fatalf("only the failing report should pass, got %d", len(rec.notes))
	}
}

func TestRenderMessageCapsFailures(t *testing.T) {
	note := sampleNote()
	note.Failures = nil
	for i := 0; i < maxListedFailures+5; i++ {
		note.Failures = append(note.Failures, Failure{Unit: fmt.Sprintf("sector:%d", i), Error: "boom"})
	}
	msg := renderMessage(note)
	if !strings.Contains(msg, "and 5 more") || !strings.Contains(msg, "PARTIAL FAILURE") {
		t.Fatalf("unexpected message:\n%s", msg)
	}
}

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}
