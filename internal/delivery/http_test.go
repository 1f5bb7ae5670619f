package delivery

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-notify/internal/subscription"
)

func TestHTTPChannel_Delivered(t *testing.T) {
	var gotPath, gotBody, gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.EscapedPath()
		b, _ := io.ReadAll(r.Body) //nolint:errcheck // Test server
		gotBody = string(b)
		gotKey = r.Header.Get(ManagementKeyHeader)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	ch := NewHTTPChannel(time.Second, "secret-key")
	if err := ch.Deliver(context.Background(), "conn/1=", srv.URL+"/dev/", []byte(`{"a":1}`)); err != nil {
		t.Fatalf("Deliver() error = %v", err)
	}

	if gotPath != "/dev/@connections/conn%2F1=" {
		t.Errorf("path = %q", gotPath)
	}
	if gotBody != `{"a":1}` {
		t.Errorf("body = %q", gotBody)
	}
	if gotKey != "secret-key" {
		t.Errorf("management key = %q", gotKey)
	}
}

func TestHTTPChannel_StatusMapping(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		wantErr  bool
		wantGone bool
	}{
		{"ok", http.StatusOK, false, false},
		{"no content", http.StatusNoContent, false, false},
		{"gone", http.StatusGone, true, true},
		{"server error", http.StatusInternalServerError, true, false},
		{"forbidden", http.StatusForbidden, true, false},
		{"not found is not gone", http.StatusNotFound, true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			err := NewHTTPChannel(time.Second, "").Deliver(context.Background(), "c1", srv.URL, []byte("x"))
			if (err != nil) != tt.wantErr {
				t.Fatalf("Deliver() error = %v, wantErr %v", err, tt.wantErr)
			}
			if errors.Is(err, subscription.ErrGone) != tt.wantGone {
				t.Errorf("Deliver() error = %v, wantGone %v", err, tt.wantGone)
			}
		})
	}
}

func TestHTTPChannel_ConnectionRefusedIsGone(t *testing.T) {
	// Grab a free port, then close it so nothing is listening.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}
	addr := ln.Addr().String()
	ln.Close() //nolint:errcheck // Port must be free

	err = NewHTTPChannel(time.Second, "").Deliver(context.Background(), "c1", "http://"+addr, []byte("x"))
	if !errors.Is(err, subscription.ErrGone) {
		t.Errorf("Deliver() error = %v, want ErrGone", err)
	}
}

func TestHTTPChannel_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		<-release
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()
	defer close(release)

	err := NewHTTPChannel(20*time.Millisecond, "").Deliver(context.Background(), "c1", srv.URL, []byte("x"))
	if err == nil {
		t.Fatal("Deliver() expected timeout error, got nil")
	}
	if errors.Is(err, subscription.ErrGone) {
		t.Errorf("timeout must not be reported as gone: %v", err)
	}
}
