// Package notify delivers run summaries to the people watching the site.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/kuitang/lp-linkcheck/internal/obs"
)

// Message is one outgoing email.
type Message struct {
	To      []string
	Subject string
	HTML    string
}

// Notifier sends messages.
type Notifier interface {
	Send(ctx context.Context, msg Message) error
}

// SplitRecipients parses a comma- or semicolon-separated address list.
func SplitRecipients(s string) []string {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ';'
	})
	var out []string
	for _, f := range fields {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}

func validate(msg Message) error {
	if len(msg.To) == 0 {
		return fmt.Errorf("notify: no recipients")
	}
	if strings.TrimSpace(msg.Subject) == "" {
		return fmt.Errorf("notify: empty subject")
	}
	return nil
}

// Mock captures messages instead of sending them. When OutboxDir is set each
// message is also written there as JSON for manual inspection.
type Mock struct {
	mu        sync.Mutex
	Sent      []Message
	OutboxDir string
	seq       uint64
}

// NewMock returns a Mock writing to dir, or only capturing when dir is empty.
func NewMock(dir string) *Mock {
	if dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			obs.Pkg("notify").Warn("create outbox dir failed", "dir", dir, "error", err)
			dir = ""
		}
	}
	return &Mock{OutboxDir: dir}
}

// Send records msg.
func (m *Mock) Send(ctx context.Context, msg Message) error {
	if err := validate(msg); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Sent = append(m.Sent, msg)

	obs.From(ctx).Info("email captured", "pkg", "notify", "to", strings.Join(msg.To, ","), "subject", msg.Subject)
	return m.writeOutbox(msg)
}

// Last returns the most recent message, or the zero value.
func (m *Mock) Last() Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Sent) == 0 {
		return Message{}
	}
	return m.Sent[len(m.Sent)-1]
}

// Count returns how many messages were captured.
func (m *Mock) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Sent)
}

type outboxEvent struct {
	Sequence       uint64   `json:"sequence"`
	To             []string `json:"to"`
	Subject        string   `json:"subject"`
	HTML           string   `json:"html"`
	SentAtUnixNano int64    `json:"sent_at_unix_nano"`
}

func (m *Mock) writeOutbox(msg Message) error {
	if m.OutboxDir == "" {
		return nil
	}
	m.seq++
	event := outboxEvent{
		Sequence:       m.seq,
		To:             msg.To,
		Subject:        msg.Subject,
		HTML:           msg.HTML,
		SentAtUnixNano: time.Now().UnixNano(),
	}
	name := fmt.Sprintf("%020d-%s.json", event.Sequence, sanitizeOutboxComponent(strings.Join(msg.To, "_")))
	finalPath := filepath.Join(m.OutboxDir, name)
	tempPath := finalPath + ".tmp"

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal outbox event: %w", err)
	}
	if err := os.WriteFile(tempPath, payload, 0o644); err != nil {
		return fmt.Errorf("write outbox temp file: %w", err)
	}
	if err := os.Rename(tempPath, finalPath); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("rename outbox file: %w", err)
	}
	return nil
}

var outboxSanitizePattern = regexp.MustCompile(`[^a-zA-Z0-9._@-]+`)

func sanitizeOutboxComponent(input string) string {
	safe := strings.TrimSpace(input)
	if safe == "" {
		return "unknown"
	}
	return outboxSanitizePattern.ReplaceAllString(safe, "_")
}
