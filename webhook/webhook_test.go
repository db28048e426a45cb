package webhook

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestDeliver_Signed(t *testing.T) {
	var gotSig string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSig = r.Header.Get(SignatureHeader)
		gotBody, _ = io.ReadAll(r.Body)
	}))
	defer srv.Close()

	ev := &Event{Type: EventVideoCompleted, JobID: "job-1", Timestamp: 1, Data: map[string]string{"uri": "u"}}
	if err := Deliver(context.Background(), srv.URL, "s3cret", ev); err != nil {
		t.Fatal(err)
	}
	if gotSig == "" || gotSig != Sign("s3cret", gotBody) {
		t.Errorf("signature %q does not match body", gotSig)
	}
}

func TestDeliver_Unsigned(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get(SignatureHeader) != "" {
			t.Error("unsigned delivery carried a signature")
		}
	}))
	defer srv.Close()
	if err := Deliver(context.Background(), srv.URL, "", &Event{Type: EventVideoFailed}); err != nil {
		t.Fatal(err)
	}
}

func TestDeliverWithRetry(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
		}
	}))
	defer srv.Close()

	delays := []time.Duration{0, time.Millisecond, time.Millisecond, time.Millisecond}
	if !deliverWithRetry(srv.URL, "", &Event{Type: EventVideoCompleted}, delays) {
		t.Fatal("delivery should succeed on the third attempt")
	}
	if calls.Load() != 3 {
		t.Errorf("attempts = %d, want 3", calls.Load())
	}
}
