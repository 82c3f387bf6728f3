package speech

import (
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Result is one recognition event from the live speech service.
// Non-final results carry the full running transcript so far and are meant to
// replace, not extend, the previous non-final result.
type Result struct {
	Text       string
	Confidence float64
	IsFinal    bool
	Language   string
}

// Recognizer is the minimal interface for realtime STT.
type Recognizer interface {
	Connect() error
	SendAudio(pcm []byte) error
	Results() <-chan Result
	Close() error
}

// LiveRecognizer streams audio to the speech service over WebSocket and emits
// recognition results in arrival order.
type LiveRecognizer struct {
	apiKey    string
	wsURL     string
	conn      *websocket.Conn
	results   chan Result
	audioData chan []byte
	stopCh    chan struct{}
	mu        sync.RWMutex
	connected bool
}

// wireResult is the service's event framing. Transcript is a pointer so that
// payloads missing the field entirely can be told apart from empty text and
// routed to the skip path.
type wireResult struct {
	Transcript *string `json:"transcript"`
	Confidence float64 `json:"confidence"`
	IsFinal    bool    `json:"is_final"`
	Language   string  `json:"language,omitempty"`
}

type wireError struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

// NewLiveRecognizer creates a new live transcription client. The same
// instance can be reused across recordings: each Connect starts a fresh
// session with its own channels.
func NewLiveRecognizer(wsURL, apiKey string) *LiveRecognizer {
	return &LiveRecognizer{
		apiKey:    apiKey,
		wsURL:     wsURL,
		results:   make(chan Result, 100),
		audioData: make(chan []byte, 1000),
		stopCh:    make(chan struct{}),
	}
}

// Connect establishes the WebSocket connection to the speech service.
func (r *LiveRecognizer) Connect() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.connected {
		return nil
	}
	if r.apiKey == "" {
		return fmt.Errorf("speech API key is empty")
	}
	if r.wsURL == "" {
		return fmt.Errorf("speech WebSocket URL is empty")
	}

	params := url.Values{}
	params.Set("sample_rate", "16000")
	params.Set("encoding", "pcm_s16le")
	wsURL := fmt.Sprintf("%s?%s", r.wsURL, params.Encode())

	headers := map[string][]string{
		"Authorization": {r.apiKey},
	}
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}

	conn, resp, err := dialer.Dial(wsURL, headers)
	if err != nil {
		if resp != nil {
			log.Printf("speech connection failed with status: %d", resp.StatusCode)
		}
		return fmt.Errorf("failed to connect to speech service: %w", err)
	}

	r.conn = conn
	r.connected = true

	// Fresh channels for this session: the previous Close closed the old
	// ones, and a send on a stale channel must be impossible.
	r.results = make(chan Result, 100)
	r.audioData = make(chan []byte, 1000)
	r.stopCh = make(chan struct{})

	go r.handleMessages(conn, r.results, r.stopCh)
	go r.sendAudioData(conn, r.audioData, r.stopCh)

	log.Println("connected to live speech service")
	return nil
}

// SendAudio queues PCM audio to be sent to the speech service.
func (r *LiveRecognizer) SendAudio(pcm []byte) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if !r.connected {
		return fmt.Errorf("not connected to speech service")
	}
	select {
	case r.audioData <- pcm:
		return nil
	default:
		log.Println("audio buffer full, dropping packet")
		return nil
	}
}

// Results returns the channel for receiving recognition results. The channel
// belongs to the current session; call after Connect.
func (r *LiveRecognizer) Results() <-chan Result {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.results
}

// Close terminates the connection and releases resources.
func (r *LiveRecognizer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.connected {
		return nil
	}
	close(r.stopCh)
	if r.conn != nil {
		terminateMsg := map[string]string{"type": "Terminate"}
		_ = r.conn.WriteJSON(terminateMsg)
		_ = r.conn.Close()
	}
	r.connected = false
	r.conn = nil
	close(r.audioData)
	close(r.results)
	log.Println("speech connection closed")
	return nil
}

// handleMessages processes incoming WebSocket messages for one session. conn
// and results are pinned at Connect so a later session's channels are never
// touched.
func (r *LiveRecognizer) handleMessages(conn *websocket.Conn, results chan Result, stopCh chan struct{}) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Printf("Recovered from panic in handleMessages: %v", rec)
		}
	}()
	for {
		select {
		case <-stopCh:
			return
		default:
			_, message, err := conn.ReadMessage()
			if err != nil {
				select {
				case <-stopCh:
				default:
					log.Printf("Error reading message: %v", err)
				}
				return
			}
			r.processMessage(message, results)
		}
	}
}

// processMessage validates one event payload and emits it as a Result.
// Unrecognized shapes are logged and skipped, never assumed well-formed.
func (r *LiveRecognizer) processMessage(message []byte, results chan Result) {
	var errMsg wireError
	if err := json.Unmarshal(message, &errMsg); err == nil && errMsg.Type == "Error" {
		log.Printf("speech service error: %s", errMsg.Error)
		return
	}

	var w wireResult
	if err := json.Unmarshal(message, &w); err != nil {
		log.Printf("skipping malformed speech event: %v", err)
		return
	}
	if w.Transcript == nil {
		log.Printf("skipping speech event without transcript field")
		return
	}

	res := Result{
		Text:       *w.Transcript,
		Confidence: w.Confidence,
		IsFinal:    w.IsFinal,
		Language:   w.Language,
	}
	select {
	case results <- res:
	default:
		log.Println("result buffer full, dropping event")
	}
}

// sendAudioData forwards queued audio to the speech service.
func (r *LiveRecognizer) sendAudioData(conn *websocket.Conn, audioData chan []byte, stopCh chan struct{}) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Printf("Recovered from panic in sendAudioData: %v", rec)
		}
	}()
	for {
		select {
		case <-stopCh:
			return
		case pcm, ok := <-audioData:
			if !ok {
				return
			}
			if err := conn.WriteMessage(websocket.BinaryMessage, pcm); err != nil {
				log.Printf("Error sending audio data: %v", err)
				return
			}
		}
	}
}
