package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Failure 描述一个失败的刷新单元。
type Failure struct {
	Unit  string
	Error string
}

// Notification 封装一次数据刷新的结果。
type Notification struct {
	Job       string
	StartedAt time.Time
	Duration  time.Duration
	Succeeded int
	Failures  []Failure
	Skipped   bool
	Reason    string
}

// Failed reports whether any unit failed or the run was skipped.
func (n Notification) Failed() bool {
	return len(n.Failures) > 0
}

// Notifier 定义推送接口。
type Notifier interface {
	Notify(ctx context.Context, notification Notification) error
}

// Filter drops successful reports when onlyFailures is set.
type Filter struct {
	Next         Notifier
	OnlyFailures bool
}

// Notify forwards the notification unless it is filtered out.
func (f Filter) Notify(ctx context.Context, note Notification) error {
	if f.Next == nil {
		return nil
	}
	if f.OnlyFailures && !note.Failed() {
		return nil
	}
	return f.Next.Notify(ctx, note)
}

// TelegramNotifier 通过 Telegram Bot API 推送消息。
type TelegramNotifier struct {
	botToken string
	chatID   string
	baseURL  string
	client   *http.Client
	logger   zerolog.Logger
}

// NewTelegramNotifier 构造 Telegram 推送器。
func NewTelegramNotifier(botToken, chatID, baseURL string, timeout time.Duration, logger zerolog.Logger) *TelegramNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if baseURL == "" {
		baseURL = "https://api.telegram.org"
	}

	return &TelegramNotifier{
		botToken: botToken,
		chatID:   chatID,
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   &http.Client{Timeout: timeout},
		logger:   logger.With().Str("component", "alert_telegram").Logger(),
	}
}

// Notify 调用 sendMessage API 推送文本。
func (n *TelegramNotifier) Notify(ctx context.Context, note Notification) error {
	payload := map[string]string{
		"chat_id": n.chatID,
		"text":    renderMessage(note),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal telegram payload: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", n.baseURL, n.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send telegram request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("telegram 响应码异常: %d", resp.StatusCode)
	}

	var result struct {
		OK bool `json:"ok"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err == nil {
		if !result.OK {
			return fmt.Errorf("telegram 返回 ok=false")
		}
	}

	n.logger.Info().Str("job", note.Job).
		Int("failures", len(note.Failures)).
		Msg("刷新报告已发送 (Telegram)")
	return nil
}

// maxListedFailures caps the failure lines of one message.
const maxListedFailures = 20

func renderMessage(note Notification) string {
	status := "OK"
	switch {
	case note.Skipped:
		status = "SKIPPED"
	case note.Failed():
		status = "PARTIAL FAILURE"
	}

	builder := strings.Builder{}
	builder.WriteString(fmt.Sprintf("[Sector Dashboard] %s %s\n", note.Job, status))
	builder.WriteString(fmt.Sprintf("Started: %s UTC\n", note.StartedAt.UTC().Format(time.RFC3339)))
	builder.WriteString(fmt.Sprintf("Duration: %s\n", note.Duration.Round(time.Second)))
	if note.Skipped {
		builder.WriteString(fmt.Sprintf("Reason: %s\n", note.Reason))
		return builder.String()
	}
	builder.WriteString(fmt.Sprintf("Units: %d ok, %d failed\n", note.Succeeded, len(note.Failures)))
	for i, f := range note.Failures {
		if i == maxListedFailures {
			builder.WriteString(fmt.Sprintf("... and %d more\n", len(note.Failures)-maxListedFailures))
			break
		}
		builder.WriteString(fmt.Sprintf("- %s: %s\n", f.Unit, f.Error))
	}
	return builder.String()
}

var (
	_ Notifier = (*TelegramNotifier)(nil)
	_ Notifier = Filter{}
)
