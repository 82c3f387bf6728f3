package orchestrator

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestMonitor_ProbeConnected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/.well-known/agent.json" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(`{"name":"bhumi-orchestrator"}`))
	}))
	defer srv.Close()

	m := NewMonitor(srv.URL)
	st := m.Probe(context.Background())
	if !st.Connected {
		t.Fatalf("expected connected, got cause %q", st.Cause)
	}
	if !m.Connected() {
		t.Fatalf("state not retained")
	}
}

func TestMonitor_ProbeServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	m := NewMonitor(srv.URL)
	st := m.Probe(context.Background())
	if st.Connected {
		t.Fatalf("expected disconnected on 500")
	}
	if st.Cause == "" {
		t.Fatalf("expected a non-empty cause")
	}
}

func TestMonitor_ProbeNetworkFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // connection refused from here on

	m := NewMonitor(srv.URL)
	st := m.Probe(context.Background())
	if st.Connected {
		t.Fatalf("expected disconnected on network failure")
	}
	if st.Cause == "" {
		t.Fatalf("expected a non-empty cause")
	}
}

func TestMonitor_SubscribeNotifiedOnTransition(t *testing.T) {
	healthy := true
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !healthy {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
	}))
	defer srv.Close()

	m := NewMonitor(srv.URL)
	var transitions []State
	m.Subscribe(func(st State) { transitions = append(transitions, st) })

	m.Probe(context.Background())
	m.Probe(context.Background()) // no transition, no notification
	healthy = false
	m.Probe(context.Background())

	if len(transitions) != 2 {
		t.Fatalf("expected 2 notifications, got %d", len(transitions))
	}
	if !transitions[0].Connected || transitions[1].Connected {
		t.Fatalf("unexpected transition order: %+v", transitions)
	}
}

func TestMonitor_CheckProbesOnDemand(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	m := NewMonitor(srv.URL)
	st := m.Check(context.Background())
	if !st.Connected {
		t.Fatalf("expected on-demand probe to run, got cause %q", st.Cause)
	}
}
