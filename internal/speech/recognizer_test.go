package speech

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// speechService answers each binary audio frame with the given events, in
// order, one event per frame. The cursor is shared across connections so a
// reconnect picks up where the last session left off. Text frames (e.g.
// Terminate) are ignored.
func speechService(t *testing.T, events []string) *httptest.Server {
	t.Helper()
	up := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	var mu sync.Mutex
	i := 0
	next := func() (string, bool) {
		mu.Lock()
		defer mu.Unlock()
		if i >= len(events) {
			return "", false
		}
		ev := events[i]
		i++
		return ev, true
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			msgType, _, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if msgType != websocket.BinaryMessage {
				continue
			}
			if ev, ok := next(); ok {
				if err := conn.WriteMessage(websocket.TextMessage, []byte(ev)); err != nil {
					return
				}
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func recvResult(t *testing.T, r *LiveRecognizer) Result {
	t.Helper()
	select {
	case res, ok := <-r.Results():
		if !ok {
			t.Fatal("results channel closed")
		}
		return res
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for result")
	}
	return Result{}
}

func TestLiveRecognizer_EmitsResults(t *testing.T) {
	srv := speechService(t, []string{
		`{"transcript":"mandi","is_final":false,"confidence":0.5}`,
		`{"transcript":"mandi price","is_final":true,"confidence":0.9,"language":"en"}`,
	})
	rec := NewLiveRecognizer(wsURL(srv), "test-key")
	if err := rec.Connect(); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer rec.Close()

	if err := rec.SendAudio([]byte{1, 2}); err != nil {
		t.Fatalf("send audio: %v", err)
	}
	if res := recvResult(t, rec); res.Text != "mandi" || res.IsFinal {
		t.Errorf("first result = %+v", res)
	}
	if err := rec.SendAudio([]byte{3, 4}); err != nil {
		t.Fatalf("send audio: %v", err)
	}
	res := recvResult(t, rec)
	if res.Text != "mandi price" || !res.IsFinal || res.Language != "en" {
		t.Errorf("second result = %+v", res)
	}
}

func TestLiveRecognizer_SkipsEventsWithoutTranscript(t *testing.T) {
	srv := speechService(t, []string{
		`{"confidence":0.4,"is_final":true}`,
		`{"transcript":"theek hai","is_final":true}`,
	})
	rec := NewLiveRecognizer(wsURL(srv), "test-key")
	if err := rec.Connect(); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer rec.Close()

	_ = rec.SendAudio([]byte{1})
	_ = rec.SendAudio([]byte{2})
	if res := recvResult(t, rec); res.Text != "theek hai" {
		t.Errorf("result = %+v, want the well-formed event only", res)
	}
}

func TestLiveRecognizer_ReusableAcrossRecordings(t *testing.T) {
	srv := speechService(t, []string{
		`{"transcript":"first recording","is_final":true}`,
		`{"transcript":"second recording","is_final":true}`,
	})
	rec := NewLiveRecognizer(wsURL(srv), "test-key")

	if err := rec.Connect(); err != nil {
		t.Fatalf("first connect: %v", err)
	}
	_ = rec.SendAudio([]byte{1})
	if res := recvResult(t, rec); res.Text != "first recording" {
		t.Errorf("first session result = %+v", res)
	}
	if err := rec.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	// The same instance must start over cleanly: no panic on SendAudio and a
	// working results channel.
	if err := rec.Connect(); err != nil {
		t.Fatalf("second connect: %v", err)
	}
	defer rec.Close()
	if err := rec.SendAudio([]byte{2}); err != nil {
		t.Fatalf("send audio after reconnect: %v", err)
	}
	if res := recvResult(t, rec); res.Text != "second recording" {
		t.Errorf("second session result = %+v", res)
	}
}

func TestLiveRecognizer_SendAudioAfterCloseErrors(t *testing.T) {
	srv := speechService(t, nil)
	rec := NewLiveRecognizer(wsURL(srv), "test-key")
	if err := rec.Connect(); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if err := rec.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := rec.SendAudio([]byte{1}); err == nil {
		t.Fatal("SendAudio after close must return an error, not panic")
	}
}

func TestLiveRecognizer_ConnectRequiresConfig(t *testing.T) {
	if err := NewLiveRecognizer("ws://localhost:1", "").Connect(); err == nil {
		t.Error("missing API key must fail")
	}
	if err := NewLiveRecognizer("", "key").Connect(); err == nil {
		t.Error("missing URL must fail")
	}
}
