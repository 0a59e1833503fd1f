/*
gmail.go - Gmail API notifier

PURPOSE:
  Sends request notifications as plain-text mail through the Gmail API
  on behalf of one authorized account.

CREDENTIALS:
  CredentialsFile is the OAuth client JSON downloaded from the Google
  console. TokenFile holds a previously authorized oauth2.Token as JSON.
  The token source refreshes the access token on its own.

THROTTLING:
  Sends are serialized and spaced by Interval to stay under the Gmail
  per-user rate limits. A cancelled context aborts the wait.
*/
package notify

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"mime"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/warp/leave-engine/timeoff"
)

// DefaultSendInterval is the minimum gap between two sends.
const DefaultSendInterval = 3 * time.Second

// GmailOptions configures NewGmail.
type GmailOptions struct {
	CredentialsFile string
	TokenFile       string
	Sender          string
	Interval        time.Duration
}

// Gmail implements timeoff.Notifier over gmail/v1.
type Gmail struct {
	service  *gmail.Service
	sender   string
	interval time.Duration

	mu       sync.Mutex
	lastSend time.Time
}

var _ timeoff.Notifier = (*Gmail)(nil)

// NewGmail loads the OAuth client and token files and builds the service.
func NewGmail(ctx context.Context, opts GmailOptions) (*Gmail, error) {
	credentials, err := os.ReadFile(opts.CredentialsFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read gmail credentials: %w", err)
	}
	cfg, err := google.ConfigFromJSON(credentials, gmail.GmailSendScope)
	if err != nil {
		return nil, fmt.Errorf("failed to create google config: %w", err)
	}

	token, err := loadToken(opts.TokenFile)
	if err != nil {
		return nil, err
	}

	service, err := gmail.NewService(ctx, option.WithTokenSource(cfg.TokenSource(ctx, token)))
	if err != nil {
		return nil, fmt.Errorf("failed to create gmail service: %w", err)
	}
	return NewGmailWithService(service, opts.Sender, opts.Interval), nil
}

// NewGmailWithService wraps an already built service. interval <= 0 uses
// DefaultSendInterval.
func NewGmailWithService(service *gmail.Service, sender string, interval time.Duration) *Gmail {
	if interval <= 0 {
		interval = DefaultSendInterval
	}
	return &Gmail{service: service, sender: sender, interval: interval}
}

func loadToken(path string) (*oauth2.Token, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read gmail token: %w", err)
	}
	var token oauth2.Token
	if err := json.Unmarshal(data, &token); err != nil {
		return nil, fmt.Errorf("failed to parse gmail token: %w", err)
	}
	return &token, nil
}

// Notify sends msg, waiting first if the previous send was too recent.
func (g *Gmail) Notify(ctx context.Context, msg timeoff.Message) error {
	if msg.To == "" {
		return fmt.Errorf("gmail: message has no recipient")
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.lastSend.IsZero() {
		if wait := g.interval - time.Since(g.lastSend); wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}
	}

	raw := base64.URLEncoding.EncodeToString([]byte(buildMessage(g.sender, msg)))
	if _, err := g.service.Users.Messages.Send("me", &gmail.Message{Raw: raw}).Context(ctx).Do(); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	g.lastSend = time.Now()
	return nil
}

// buildMessage renders an RFC 2822 plain-text message.
func buildMessage(from string, msg timeoff.Message) string {
	var b strings.Builder
	if from != "" {
		fmt.Fprintf(&b, "From: %s\r\n", from)
	}
	fmt.Fprintf(&b, "To: %s\r\n", msg.To)
	fmt.Fprintf(&b, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", msg.Subject))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\n\r\n")
	b.WriteString(strings.ReplaceAll(msg.Body, "\n", "\r\n"))
	return b.String()
}
