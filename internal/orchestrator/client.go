package orchestrator

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrDisconnected means the backend failed its last health probe; the
	// send was rejected before any network call.
	ErrDisconnected = errors.New("orchestrator backend unreachable")
	// ErrNoResult means the stream completed without a result-bearing frame.
	ErrNoResult = errors.New("no result frame found in response stream")
	// ErrSuperseded means a newer send started while this one was in flight;
	// its response was discarded and no shared state was committed.
	ErrSuperseded = errors.New("request superseded by a newer send")
)

// userIDPrefix is the machine-parseable convention for carrying the user
// identifier inside the text part, so any collaborator can recover it.
const userIDPrefix = "user_id: "

// framePrefix marks one event frame on the response stream.
const framePrefix = "data:"

// Reply is a completed conversation turn from the orchestrating agent.
type Reply struct {
	Text      string
	ContextID string
}

// SendOptions carries per-send parameters.
type SendOptions struct {
	// UserID, when set, is prepended to the text as "user_id: <id>\n\n".
	UserID string
	// ContextID overrides the client's current conversation context.
	ContextID string
	// DocumentAttached permits an empty text body.
	DocumentAttached bool
}

// Client sends conversation turns to the orchestrating agent service and
// reassembles its streamed reply. It owns the current conversation context id:
// at most one is current, and a stale in-flight response never overwrites a
// newer one (last-issued-wins, enforced by a per-send generation token).
type Client struct {
	HTTPClient *http.Client
	BaseURL    string
	monitor    *Monitor

	mu             sync.Mutex
	contextID      string
	cancelInFlight context.CancelFunc
	generation     uint64
}

// NewClient creates an orchestrator client. The monitor may be nil, in which
// case sends are not gated on connectivity.
func NewClient(baseURL string, monitor *Monitor) *Client {
	return &Client{
		HTTPClient: &http.Client{Timeout: 120 * time.Second},
		BaseURL:    strings.TrimRight(baseURL, "/"),
		monitor:    monitor,
	}
}

// JSON-RPC envelope for message/stream.
type textPart struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type wireMessage struct {
	Role      string     `json:"role"`
	Parts     []textPart `json:"parts"`
	MessageID string     `json:"messageId"`
	ContextID string     `json:"contextId,omitempty"`
}

type rpcParams struct {
	Message wireMessage `json:"message"`
}

type rpcRequest struct {
	JSONRPC string    `json:"jsonrpc"`
	ID      string    `json:"id"`
	Method  string    `json:"method"`
	Params  rpcParams `json:"params"`
}

// streamFrame is one self-contained payload carried by a data: line.
type streamFrame struct {
	Result *frameResult `json:"result"`
}

type frameResult struct {
	ID        string `json:"id"`
	ContextID string `json:"contextId"`
	Status    struct {
		Message struct {
			Parts []textPart `json:"parts"`
		} `json:"message"`
	} `json:"status"`
}

// ContextID returns the current conversation context id, empty before the
// first successful turn.
func (c *Client) ContextID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.contextID
}

// ResetConversation clears the conversation context so the next send starts a
// new logical conversation.
func (c *Client) ResetConversation() {
	c.mu.Lock()
	c.contextID = ""
	c.mu.Unlock()
}

// CancelInFlight aborts the current request, if any. The aborted request's
// eventual response is discarded, not processed.
func (c *Client) CancelInFlight() {
	c.mu.Lock()
	cancel := c.cancelInFlight
	c.generation++
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Send transmits one turn and returns the terminal agent reply. Issuing a new
// Send cancels any previous in-flight request. On any error the previously
// committed context id is left untouched.
func (c *Client) Send(ctx context.Context, text string, opts SendOptions) (Reply, error) {
	text = strings.TrimSpace(text)
	if text == "" && !opts.DocumentAttached {
		return Reply{}, fmt.Errorf("orchestrator: empty message")
	}

	// Gate on connectivity before touching the network.
	if c.monitor != nil {
		if st := c.monitor.Check(ctx); !st.Connected {
			return Reply{}, fmt.Errorf("%w: %s", ErrDisconnected, st.Cause)
		}
	}

	// Cancel the previous in-flight request and register this one.
	c.mu.Lock()
	if c.cancelInFlight != nil {
		c.cancelInFlight()
	}
	c.generation++
	gen := c.generation
	sendCtx, cancel := context.WithCancel(ctx)
	c.cancelInFlight = cancel
	contextID := opts.ContextID
	if contextID == "" {
		contextID = c.contextID
	}
	c.mu.Unlock()
	defer cancel()

	body := text
	if opts.UserID != "" {
		body = userIDPrefix + opts.UserID + "\n\n" + text
	}

	envelope := rpcRequest{
		JSONRPC: "2.0",
		ID:      uuid.NewString(),
		Method:  "message/stream",
		Params: rpcParams{
			Message: wireMessage{
				Role:      "user",
				Parts:     []textPart{{Type: "text", Text: body}},
				MessageID: uuid.NewString(),
				ContextID: contextID,
			},
		},
	}

	result, err := c.stream(sendCtx, envelope)
	if err != nil {
		if c.superseded(gen) {
			return Reply{}, ErrSuperseded
		}
		return Reply{}, err
	}

	// Commit: the context id from the terminal result supersedes the previous
	// one, unless a newer send invalidated this request meanwhile.
	c.mu.Lock()
	if gen != c.generation || sendCtx.Err() != nil {
		c.mu.Unlock()
		return Reply{}, ErrSuperseded
	}
	if result.ContextID != "" {
		c.contextID = result.ContextID
	}
	committed := c.contextID
	c.cancelInFlight = nil
	c.mu.Unlock()

	return Reply{Text: extractText(result), ContextID: committed}, nil
}

// stream transmits the envelope and parses the response stream, returning the
// last result-bearing frame. Frames are ordered by arrival, not significance.
func (c *Client) stream(ctx context.Context, envelope rpcRequest) (*frameResult, error) {
	reqBody, _ := json.Marshal(envelope)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/", bytes.NewReader(reqBody))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("orchestrator: status=%d body=%s", resp.StatusCode, string(b))
	}

	var last *frameResult
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, framePrefix) {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, framePrefix))
		if payload == "" {
			continue
		}
		var frame streamFrame
		if err := json.Unmarshal([]byte(payload), &frame); err != nil {
			// One bad frame must not abort the whole parse.
			log.Printf("orchestrator: skipping malformed frame: %v", err)
			continue
		}
		if frame.Result != nil {
			last = frame.Result
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("orchestrator: reading stream: %w", err)
	}
	if last == nil {
		return nil, ErrNoResult
	}
	return last, nil
}

func (c *Client) superseded(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return gen != c.generation
}

// extractText concatenates the text parts of the terminal status message.
func extractText(res *frameResult) string {
	var b strings.Builder
	for _, p := range res.Status.Message.Parts {
		if p.Type == "text" || p.Type == "" {
			b.WriteString(p.Text)
		}
	}
	return strings.TrimSpace(b.String())
}
