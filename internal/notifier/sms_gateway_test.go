package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestSMSGatewaySend(t *testing.T) {
	var got smsRequest
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/messages" {
			http.NotFound(w, r)
			return
		}
		auth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"message_id":"msg-42","status":"queued"}`))
	}))
	defer srv.Close()

	gw := NewSMSGateway(srv.URL, "key-1", "MEMBERS")
	ref, err := gw.Send(context.Background(), Message{To: "+15550001111", Text: "hello", Reference: "M1"})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if ref != "msg-42" {
		t.Errorf("ref = %q, want msg-42", ref)
	}
	if auth != "Bearer key-1" {
		t.Errorf("authorization = %q", auth)
	}
	if got.To != "+15550001111" || got.From != "MEMBERS" || got.Message != "hello" {
		t.Errorf("unexpected payload %+v", got)
	}
}

func TestSMSGatewayRejectsErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`{"error":"carrier unavailable"}`))
	}))
	defer srv.Close()

	gw := NewSMSGateway(srv.URL, "key", "MEMBERS")
	if _, err := gw.Send(context.Background(), Message{To: "+15550001111", Text: "hi"}); err == nil {
		t.Fatal("expected error for 502 response")
	}
}

func TestSMSGatewayHonoursDeadline(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(500 * time.Millisecond)
		_, _ = w.Write([]byte(`{"message_id":"late"}`))
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	gw := NewSMSGateway(srv.URL, "key", "MEMBERS")
	if _, err := gw.Send(ctx, Message{To: "+15550001111", Text: "hi"}); err == nil {
		t.Fatal("expected timeout error")
	}
}

func TestSMSGatewayNotConfigured(t *testing.T) {
	gw := NewSMSGateway("", "", "")
	if _, err := gw.Send(context.Background(), Message{To: "+1555"}); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}
