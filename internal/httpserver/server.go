package httpserver

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/CynicPixel/bhumi-ai/internal/enhance"
	"github.com/CynicPixel/bhumi-ai/internal/orchestrator"
	"github.com/CynicPixel/bhumi-ai/internal/session"
	"github.com/CynicPixel/bhumi-ai/internal/speech"
	"github.com/CynicPixel/bhumi-ai/internal/transcript"
)

// Chat is the message-sending surface the gateway exposes.
type Chat interface {
	SendMessage(ctx context.Context, text string, att *enhance.Attachment) (string, error)
	History() []session.Turn
}

// Conversation owns the context id of the ongoing exchange.
type Conversation interface {
	ContextID() string
	ResetConversation()
	CancelInFlight()
}

// Voice is the server-side recording surface: audio flows in, a finalized
// transcript comes out.
type Voice interface {
	StartRecording(ctx context.Context) error
	FeedAudio(pcm []byte)
	StopRecording(ctx context.Context, audio []byte) string
	DiscardRecording()
	Interim() string
}

// Handlers bundles the gateway's dependencies.
type Handlers struct {
	Chat    Chat
	Voice   Voice
	Conv    Conversation
	Monitor *orchestrator.Monitor
	Batch   speech.BatchTranscriber
	Grace   time.Duration
}

func NewHandlers(chat Chat, voice Voice, conv Conversation, monitor *orchestrator.Monitor, batch speech.BatchTranscriber) Handlers {
	return Handlers{
		Chat:    chat,
		Voice:   voice,
		Conv:    conv,
		Monitor: monitor,
		Batch:   batch,
		Grace:   transcript.FinalizationGrace,
	}
}

// New constructs the echo server with routes and middleware.
func New(h Handlers) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	h.Register(e)
	return e
}

func (h Handlers) Register(e *echo.Echo) {
	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	e.GET("/connectivity", h.connectivity)
	e.POST("/chat", h.chat)
	e.GET("/conversation", h.conversation)
	e.POST("/conversation/reset", h.resetConversation)
	e.GET("/speech", h.speechSocket)
}

type attachmentRequest struct {
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

type chatRequest struct {
	Text       string             `json:"text"`
	Attachment *attachmentRequest `json:"attachment,omitempty"`
}

type chatResponse struct {
	Reply     string `json:"reply"`
	ContextID string `json:"context_id,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (h Handlers) chat(c echo.Context) error {
	var req chatRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request body"})
	}

	var att *enhance.Attachment
	if req.Attachment != nil {
		att = &enhance.Attachment{MediaType: req.Attachment.MediaType, Data: req.Attachment.Data}
	}
	if req.Text == "" && att == nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "message is empty"})
	}

	reply, err := h.Chat.SendMessage(c.Request().Context(), req.Text, att)
	switch {
	case err == nil:
	case errors.Is(err, orchestrator.ErrSuperseded):
		// A newer message took over; this one produces no visible turn.
		return c.JSON(http.StatusConflict, errorResponse{Error: "superseded by a newer message"})
	case errors.Is(err, orchestrator.ErrDisconnected):
		return c.JSON(http.StatusServiceUnavailable, errorResponse{Error: err.Error()})
	default:
		log.Printf("chat: send failed: %v", err)
		return c.JSON(http.StatusBadGateway, errorResponse{Error: err.Error()})
	}

	resp := chatResponse{Reply: reply}
	if h.Conv != nil {
		resp.ContextID = h.Conv.ContextID()
	}
	return c.JSON(http.StatusOK, resp)
}

func (h Handlers) connectivity(c echo.Context) error {
	if h.Monitor == nil {
		return c.JSON(http.StatusOK, map[string]any{"connected": true})
	}
	st := h.Monitor.Check(c.Request().Context())
	return c.JSON(http.StatusOK, map[string]any{
		"connected": st.Connected,
		"cause":     st.Cause,
	})
}

type conversationResponse struct {
	ContextID string         `json:"context_id"`
	History   []session.Turn `json:"history"`
}

func (h Handlers) conversation(c echo.Context) error {
	resp := conversationResponse{History: h.Chat.History()}
	if h.Conv != nil {
		resp.ContextID = h.Conv.ContextID()
	}
	if resp.History == nil {
		resp.History = []session.Turn{}
	}
	return c.JSON(http.StatusOK, resp)
}

func (h Handlers) resetConversation(c echo.Context) error {
	if h.Conv != nil {
		h.Conv.CancelInFlight()
		h.Conv.ResetConversation()
	}
	return c.NoContent(http.StatusNoContent)
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// Browser demo clients connect from arbitrary origins.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// speechFrame is a client event on the speech socket. Result frames mirror
// the recognizer's events; a stop frame may carry recorded audio for the
// batched fallback.
type speechFrame struct {
	Event      string  `json:"event"`
	Transcript string  `json:"transcript"`
	Confidence float64 `json:"confidence"`
	IsFinal    bool    `json:"is_final"`
	Language   string  `json:"language"`
	Audio      string  `json:"audio"`
}

type speechReply struct {
	Event    string `json:"event"`
	Text     string `json:"text,omitempty"`
	Language string `json:"language,omitempty"`
}

// speechSocket is one recording attempt. Two modes share the connection: the
// browser pushes its own recognition events as result frames, or it sends a
// start frame and streams raw audio as binary messages, in which case the
// voice session's recognizer does the transcription server-side. Either way
// the reply to stop is the finalized transcript.
func (h Handlers) speechSocket(c echo.Context) error {
	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	ctx := c.Request().Context()
	acc := transcript.NewAccumulator()
	acc.Start()

	live := false
	lastInterim := ""

	// Release the recognizer if the client vanishes mid-recording.
	defer func() {
		if live {
			h.Voice.DiscardRecording()
		}
	}()

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("speech socket: read error: %v", err)
			}
			return nil
		}

		if msgType == websocket.BinaryMessage {
			if !live {
				log.Println("speech socket: binary frame before start, skipping")
				continue
			}
			h.Voice.FeedAudio(data)
			if txt := h.Voice.Interim(); txt != "" && txt != lastInterim {
				lastInterim = txt
				_ = conn.WriteJSON(speechReply{Event: "interim", Text: txt})
			}
			continue
		}

		var frame speechFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			log.Printf("speech socket: skipping malformed frame: %v", err)
			continue
		}

		switch frame.Event {
		case "start":
			if h.Voice == nil {
				_ = conn.WriteJSON(speechReply{Event: "error", Text: "server-side recognition not available"})
				return nil
			}
			if err := h.Voice.StartRecording(ctx); err != nil {
				_ = conn.WriteJSON(speechReply{Event: "error", Text: err.Error()})
				return nil
			}
			live = true
			_ = conn.WriteJSON(speechReply{Event: "started"})
		case "result":
			acc.Apply(speech.Result{
				Text:       frame.Transcript,
				Confidence: frame.Confidence,
				IsFinal:    frame.IsFinal,
				Language:   frame.Language,
			})
			if !frame.IsFinal && frame.Transcript != "" {
				_ = conn.WriteJSON(speechReply{Event: "interim", Text: frame.Transcript})
			}
		case "stop":
			if live {
				text := h.Voice.StopRecording(ctx, decodeAudio(frame.Audio))
				live = false
				_ = conn.WriteJSON(speechReply{Event: "transcript", Text: text})
			} else {
				h.finishRecording(ctx, conn, acc, frame.Audio)
			}
			return nil
		case "discard":
			if live {
				h.Voice.DiscardRecording()
				live = false
			} else {
				acc.Discard()
			}
			_ = conn.WriteJSON(speechReply{Event: "discarded"})
			return nil
		default:
			log.Printf("speech socket: unknown event %q, skipping", frame.Event)
		}
	}
}

func decodeAudio(b64 string) []byte {
	if b64 == "" {
		return nil
	}
	audio, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		log.Printf("speech socket: bad audio payload: %v", err)
		return nil
	}
	return audio
}

// finishRecording closes out a browser-recognition attempt: result frames
// are drained for the length of the finalization grace so a final that raced
// the stop frame still lands, then the batched fallback covers an empty
// transcript before the reply is sent.
func (h Handlers) finishRecording(ctx context.Context, conn *websocket.Conn, acc *transcript.Accumulator, audioB64 string) {
	acc.Stop()

	grace := h.Grace
	if grace <= 0 {
		grace = transcript.FinalizationGrace
	}
	deadline := time.Now().Add(grace)
	for time.Now().Before(deadline) {
		_ = conn.SetReadDeadline(deadline)
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		if msgType != websocket.TextMessage {
			continue
		}
		var frame speechFrame
		if err := json.Unmarshal(data, &frame); err != nil || frame.Event != "result" {
			continue
		}
		acc.Apply(speech.Result{
			Text:       frame.Transcript,
			Confidence: frame.Confidence,
			IsFinal:    frame.IsFinal,
			Language:   frame.Language,
		})
	}

	if !acc.HasText() && h.Batch != nil && audioB64 != "" {
		if audio := decodeAudio(audioB64); audio != nil {
			if res, err := h.Batch.Transcribe(ctx, audio); err != nil {
				log.Printf("speech socket: batch transcription failed: %v", err)
			} else {
				acc.SetFinal(res.Transcript)
			}
		}
	}

	lang := acc.Language()
	_ = conn.WriteJSON(speechReply{Event: "transcript", Text: acc.Take(), Language: lang})
}
