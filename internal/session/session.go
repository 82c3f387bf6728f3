package session

import (
	"context"
	"errors"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/CynicPixel/bhumi-ai/internal/enhance"
	"github.com/CynicPixel/bhumi-ai/internal/orchestrator"
	"github.com/CynicPixel/bhumi-ai/internal/speech"
	"github.com/CynicPixel/bhumi-ai/internal/transcript"
)

// Orchestrator is the minimal interface for sending a conversation turn.
type Orchestrator interface {
	Send(ctx context.Context, text string, opts orchestrator.SendOptions) (orchestrator.Reply, error)
}

// Enhancer splices attachment content into the outgoing message body.
type Enhancer interface {
	Enhance(ctx context.Context, text string, att *enhance.Attachment) string
}

// Turn is one half of a conversation exchange, for display.
type Turn struct {
	Role string // "user" or "assistant"
	Text string
}

// Session ties the input pipeline to the orchestrator for one user: voice
// recording flows through the transcript accumulator with a batched fallback,
// attachments flow through the enhancer, and completed turns are recorded.
type Session struct {
	recognizer   speech.Recognizer
	batch        speech.BatchTranscriber
	enhancer     Enhancer
	orch         Orchestrator
	userID       string
	grace        time.Duration
	onTranscript func(text string)

	mu        sync.Mutex
	acc       *transcript.Accumulator
	recording bool
	history   []Turn
}

// NewSession constructs a Session. batch and onTranscript may be nil.
func NewSession(rec speech.Recognizer, batch speech.BatchTranscriber, enh Enhancer, orch Orchestrator, userID string, onTranscript func(string)) *Session {
	return &Session{
		recognizer:   rec,
		batch:        batch,
		enhancer:     enh,
		orch:         orch,
		userID:       userID,
		grace:        transcript.FinalizationGrace,
		onTranscript: onTranscript,
		acc:          transcript.NewAccumulator(),
	}
}

// StartRecording connects the recognizer and begins accumulating results.
func (s *Session) StartRecording(ctx context.Context) error {
	s.mu.Lock()
	if s.recording {
		s.mu.Unlock()
		return errors.New("recording already in progress")
	}
	s.recording = true
	s.mu.Unlock()

	if err := s.recognizer.Connect(); err != nil {
		s.mu.Lock()
		s.recording = false
		s.mu.Unlock()
		return err
	}
	s.acc.Start()

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case res, ok := <-s.recognizer.Results():
				if !ok {
					return
				}
				s.acc.Apply(res)
				if s.onTranscript != nil && res.Text != "" {
					s.onTranscript(res.Text)
				}
			}
		}
	}()
	return nil
}

// FeedAudio forwards captured audio to the recognizer.
func (s *Session) FeedAudio(pcm []byte) {
	_ = s.recognizer.SendAudio(pcm)
}

// StopRecording releases the recognizer, waits out the finalization grace
// period for late results, falls back to the batched transcription service
// when nothing materialized, and returns the final transcript. The returned
// text is never empty: the placeholder is used as a last resort.
func (s *Session) StopRecording(ctx context.Context, audio []byte) string {
	s.mu.Lock()
	wasRecording := s.recording
	s.recording = false
	s.mu.Unlock()

	s.acc.Stop()

	// Wait out the grace period before tearing the stream down so final
	// events still in flight from the speech service can land.
	s.acc.WaitFinal(ctx, s.grace)

	// Release the capture device on every exit path.
	if wasRecording {
		if err := s.recognizer.Close(); err != nil {
			log.Printf("session: recognizer close: %v", err)
		}
	}

	if !s.acc.HasText() && s.batch != nil && len(audio) > 0 {
		br, err := s.batch.Transcribe(ctx, audio)
		if err != nil {
			log.Printf("session: batch transcription failed: %v", err)
		} else if br.Transcript != "" {
			s.acc.SetFinal(br.Transcript)
		}
	}
	return s.acc.Take()
}

// DiscardRecording releases the recognizer and drops all transcript state,
// including the backing copy.
func (s *Session) DiscardRecording() {
	s.mu.Lock()
	wasRecording := s.recording
	s.recording = false
	s.mu.Unlock()
	if wasRecording {
		if err := s.recognizer.Close(); err != nil {
			log.Printf("session: recognizer close: %v", err)
		}
	}
	s.acc.Discard()
}

// Interim returns the live in-progress fragment for display.
func (s *Session) Interim() string { return s.acc.Interim() }

// SendMessage enhances the text with the attachment, transmits the turn, and
// records the exchange. A superseded send is not recorded and surfaces
// ErrSuperseded so the caller can stay silent about it.
func (s *Session) SendMessage(ctx context.Context, text string, att *enhance.Attachment) (string, error) {
	enhanced := text
	if s.enhancer != nil {
		enhanced = s.enhancer.Enhance(ctx, text, att)
	}
	enhanced = strings.TrimSpace(enhanced)

	reply, err := s.orch.Send(ctx, enhanced, orchestrator.SendOptions{
		UserID:           s.userID,
		DocumentAttached: att != nil,
	})
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	s.history = append(s.history, Turn{Role: "user", Text: enhanced})
	s.history = append(s.history, Turn{Role: "assistant", Text: reply.Text})
	s.mu.Unlock()
	return reply.Text, nil
}

// History returns a copy of the recorded turns.
func (s *Session) History() []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Turn, len(s.history))
	copy(out, s.history)
	return out
}
