package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/nasalciuc/darwinscrape/models"
)

func TestDeliver_SignsPayload(t *testing.T) {
	const secret = "test-secret"

	var (
		gotSig  string
		gotBody []byte
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSig = r.Header.Get("X-Darwinscrape-Signature")
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	event := NewSessionEvent(&models.SessionSummary{
		Status:    models.SessionCompleted,
		Processed: 5,
		Succeeded: 5,
	})
	if err := Deliver(context.Background(), srv.URL, secret, event); err != nil {
		t.Fatalf("Deliver: %v", err)
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(gotBody)
	want := "sha256=" + hex.EncodeToString(mac.Sum(nil))
	if gotSig != want {
		t.Errorf("signature = %q, want %q", gotSig, want)
	}

	var decoded Event
	if err := json.Unmarshal(gotBody, &decoded); err != nil {
		t.Fatalf("payload is not valid JSON: %v", err)
	}
	if decoded.Type != EventSessionCompleted {
		t.Errorf("event type = %s", decoded.Type)
	}
	if decoded.Summary == nil || decoded.Summary.Processed != 5 {
		t.Errorf("summary not carried: %+v", decoded.Summary)
	}
}

func TestDeliver_NoSecretNoSignature(t *testing.T) {
	var gotSig string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSig = r.Header.Get("X-Darwinscrape-Signature")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	event := NewSessionEvent(&models.SessionSummary{Status: models.SessionCompleted})
	if err := Deliver(context.Background(), srv.URL, "", event); err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	if gotSig != "" {
		t.Errorf("unexpected signature header %q", gotSig)
	}
}

func TestDeliver_EndpointError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	event := NewSessionEvent(&models.SessionSummary{Status: models.SessionCompleted})
	if err := Deliver(context.Background(), srv.URL, "", event); err == nil {
		t.Fatal("expected error for 502 response")
	}
}

func TestNewSessionEvent_AbortedType(t *testing.T) {
	event := NewSessionEvent(&models.SessionSummary{Status: models.SessionAborted})
	if event.Type != EventSessionAborted {
		t.Errorf("event type = %s, want %s", event.Type, EventSessionAborted)
	}
}
