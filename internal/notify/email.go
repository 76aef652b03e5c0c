package notify

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"
)

// EmailChannel sends a plain-text notification over SMTP. No example
// repo in the pack pulls in a third-party mail client, so this stays
// on net/smtp rather than inventing a dependency that nothing else in
// the corpus grounds.
type EmailChannel struct {
	addr string
	auth smtp.Auth
	from string
	to   []string
}

// NewEmailChannel builds an EmailChannel from params: host, port, from,
// to (comma-separated), and optionally username/password for PLAIN auth.
func NewEmailChannel(params map[string]string) (*EmailChannel, error) {
	host := params["host"]
	port := params["port"]
	from := params["from"]
	to := params["to"]
	if host == "" || port == "" || from == "" || to == "" {
		return nil, fmt.Errorf("email channel requires host, port, from, and to parameters")
	}

	var auth smtp.Auth
	if user, pass := params["username"], params["password"]; user != "" {
		auth = smtp.PlainAuth("", user, pass, host)
	}

	return &EmailChannel{
		addr: host + ":" + port,
		auth: auth,
		from: from,
		to:   splitAddresses(to),
	}, nil
}

func (c *EmailChannel) Name() string { return "email" }

func (c *EmailChannel) Send(ctx context.Context, p Payload) error {
	subject := fmt.Sprintf("disk-watchdogd: %s on %s", p.Level, p.Mount)
	body := fmt.Sprintf("To: %s\r\nSubject: %s\r\n\r\n%s\r\n", joinAddresses(c.to), subject, p.Message)

	// net/smtp has no context-aware send; SendMail dials and completes
	// synchronously, ignoring ctx, and the dispatcher waits for it to
	// return.
	return smtp.SendMail(c.addr, c.auth, c.from, c.to, []byte(body))
}

func splitAddresses(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func joinAddresses(addrs []string) string {
	return strings.Join(addrs, ", ")
}
