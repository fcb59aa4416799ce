package analytics_test

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/easygenie/orchestrator/internal/analytics"
	"github.com/easygenie/orchestrator/pkg/models"
)

func TestWebhookSink_Send(t *testing.T) {
	var gotBody []byte
	var gotSig, gotKind string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		gotSig = r.Header.Get("X-EasyGenie-Signature")
		gotKind = r.Header.Get("X-EasyGenie-Event")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	sink := analytics.NewWebhookSink(srv.URL, "s3cret")
	event := &models.Event{
		ID:        "ev1",
		Kind:      models.EventInteraction,
		Tool:      "text_assistant",
		CreatedAt: time.Now().UTC(),
	}
	if err := sink.Send(context.Background(), event); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	if gotKind != string(models.EventInteraction) {
		t.Errorf("X-EasyGenie-Event = %q", gotKind)
	}

	// Signature is the HMAC-SHA256 of the exact body.
	mac := hmac.New(sha256.New, []byte("s3cret"))
	mac.Write(gotBody)
	want := "sha256=" + hex.EncodeToString(mac.Sum(nil))
	if gotSig != want {
		t.Errorf("signature = %q, want %q", gotSig, want)
	}

	var decoded models.Event
	if err := json.Unmarshal(gotBody, &decoded); err != nil {
		t.Fatalf("body is not valid JSON: %v", err)
	}
	if decoded.ID != "ev1" {
		t.Errorf("payload ID = %q", decoded.ID)
	}
}

func TestWebhookSink_NoSecretSkipsSignature(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-EasyGenie-Signature") != "" {
			t.Error("signature header present without a secret")
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	sink := analytics.NewWebhookSink(srv.URL, "")
	if err := sink.Send(context.Background(), &models.Event{Kind: models.EventQualityAlert}); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
}

func TestWebhookSink_RetriesThenFails(t *testing.T) {
	var attempts atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	sink := analytics.NewWebhookSink(srv.URL, "")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := sink.Send(ctx, &models.Event{Kind: models.EventProviderError}); err == nil {
		t.Fatal("Send() should fail when every attempt gets a 5xx")
	}
	if attempts.Load() != 3 {
		t.Errorf("attempts = %d, want 3", attempts.Load())
	}
}

// recordingSink captures dispatched events.
type recordingSink struct {
	events chan *models.Event
}

func (recordingSink) Name() string { return "recording" }
func (r recordingSink) Send(_ context.Context, e *models.Event) error {
	r.events <- e
	return nil
}

func TestService_PublishStampsAndDispatches(t *testing.T) {
	svc := analytics.NewService()
	defer svc.Close()

	rec := recordingSink{events: make(chan *models.Event, 1)}
	svc.RegisterSink(rec)

	svc.Publish(&models.Event{Kind: models.EventInteraction, Tool: "text_assistant"})

	select {
	case got := <-rec.events:
		if got.ID == "" {
			t.Error("Publish() should assign an event id")
		}
		if got.CreatedAt.IsZero() {
			t.Error("Publish() should stamp CreatedAt")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("event never reached the sink")
	}
}

func TestService_NilEventIgnored(t *testing.T) {
	svc := analytics.NewService()
	defer svc.Close()
	svc.Publish(nil) // must not panic
}
