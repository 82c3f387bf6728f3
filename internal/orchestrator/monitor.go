package orchestrator

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"
)

// agentCardPath is the well-known capability endpoint; any 2xx means reachable.
const agentCardPath = "/.well-known/agent.json"

// State is the monitor's view of backend reachability.
type State struct {
	Connected bool
	Cause     string
}

// Monitor probes the orchestrator's capability endpoint and owns the current
// connectivity state. It never returns an error for network failure; absence
// of a response is simply "disconnected".
type Monitor struct {
	HTTPClient *http.Client
	BaseURL    string

	mu     sync.Mutex
	state  State
	probed bool
	subs   []func(State)

	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewMonitor creates a connectivity monitor for the given base URL.
func NewMonitor(baseURL string) *Monitor {
	return &Monitor{
		HTTPClient: &http.Client{Timeout: 5 * time.Second},
		BaseURL:    strings.TrimRight(baseURL, "/"),
		stopCh:     make(chan struct{}),
	}
}

// Probe performs one on-demand health check and updates the state.
func (m *Monitor) Probe(ctx context.Context) State {
	st := m.probe(ctx)
	m.setState(st)
	return st
}

func (m *Monitor) probe(ctx context.Context) State {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.BaseURL+agentCardPath, nil)
	if err != nil {
		return State{Connected: false, Cause: err.Error()}
	}
	resp, err := m.HTTPClient.Do(req)
	if err != nil {
		return State{Connected: false, Cause: fmt.Sprintf("health probe failed: %v", err)}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return State{Connected: false, Cause: fmt.Sprintf("health probe returned status %d", resp.StatusCode)}
	}
	return State{Connected: true}
}

// Check returns the current state, probing on demand if no probe has run yet.
func (m *Monitor) Check(ctx context.Context) State {
	m.mu.Lock()
	probed := m.probed
	st := m.state
	m.mu.Unlock()
	if probed {
		return st
	}
	return m.Probe(ctx)
}

// State returns the last observed connectivity state.
func (m *Monitor) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Connected reports the last observed reachability.
func (m *Monitor) Connected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Connected
}

// Subscribe registers a callback invoked on every connectivity transition.
func (m *Monitor) Subscribe(fn func(State)) {
	m.mu.Lock()
	m.subs = append(m.subs, fn)
	m.mu.Unlock()
}

// Start begins periodic probing until Stop is called.
func (m *Monitor) Start(interval time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-m.stopCh:
				return
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), interval)
				m.Probe(ctx)
				cancel()
			}
		}
	}()
}

// Stop halts periodic probing. Safe to call more than once.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() { close(m.stopCh) })
}

func (m *Monitor) setState(st State) {
	m.mu.Lock()
	changed := !m.probed || st.Connected != m.state.Connected
	m.state = st
	m.probed = true
	subs := make([]func(State), len(m.subs))
	copy(subs, m.subs)
	m.mu.Unlock()

	if !changed {
		return
	}
	if st.Connected {
		log.Println("orchestrator backend connected")
	} else {
		log.Printf("orchestrator backend disconnected: %s", st.Cause)
	}
	for _, fn := range subs {
		fn(st)
	}
}
