package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/diskwatchd/disk-watchdogd/internal/level"
)

func TestWebhookChannelRequiresURL(t *testing.T) {
	if _, err := NewWebhookChannel(map[string]string{}); err == nil {
		t.Error("expected error for missing url")
	}
}

func TestWebhookChannelSendsJSONPayload(t *testing.T) {
	var received Payload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&received)
		if r.Header.Get("Content-Type") != "application/json" {
			t.Error("expected JSON content type")
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c, err := NewWebhookChannel(map[string]string{"url": srv.URL})
	if err != nil {
		t.Fatalf("NewWebhookChannel: %v", err)
	}
	if err := c.Send(context.Background(), Payload{Level: level.Warn, Mount: "/"}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if received.Mount != "/" {
		t.Errorf("expected payload roundtrip, got %+v", received)
	}
}

func TestWebhookChannelSignsWithSecret(t *testing.T) {
	var gotSig string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSig = r.Header.Get("X-Disk-Watchdogd-Signature")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c, _ := NewWebhookChannel(map[string]string{"url": srv.URL, "secret": "s3cr3t"})
	_ = c.Send(context.Background(), Payload{Level: level.Pause})

	if gotSig == "" {
		t.Error("expected HMAC signature header when secret is configured")
	}
}

func TestWebhookChannelErrorsOn4xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	c, _ := NewWebhookChannel(map[string]string{"url": srv.URL})
	if err := c.Send(context.Background(), Payload{Level: level.Warn}); err == nil {
		t.Error("expected error on 400 response")
	}
}
