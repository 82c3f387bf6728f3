package transcript

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/CynicPixel/bhumi-ai/internal/speech"
)

// FinalizationGrace is how long we wait after a recording stops for
// late-arriving final results before deciding the transcript is complete.
const FinalizationGrace = 1500 * time.Millisecond

// Placeholder is used when neither live recognition nor the batched fallback
// produced any text, so the outgoing message is never empty.
const Placeholder = "Voice message (transcription unavailable)"

// Accumulator converts a stream of live recognition results into one growing
// transcript. The committed portion is append-only within a recording session;
// the interim portion is fully replaced on every non-final result. A backing
// copy of the committed text is kept so that a delayed stop callback or a
// caller teardown does not lose words; it is cleared only on Discard/Take.
type Accumulator struct {
	mu        sync.Mutex
	committed string
	interim   string
	backing   string
	final     string
	language  string
	recording bool
}

// NewAccumulator creates an empty accumulator.
func NewAccumulator() *Accumulator {
	return &Accumulator{}
}

// Start begins a recording session. Committed and interim state from any
// previous session is reset; the backing copy survives until Take or Discard
// so a restarted session can still recover the last transcript.
func (a *Accumulator) Start() {
	a.mu.Lock()
	a.committed = ""
	a.interim = ""
	a.final = ""
	a.language = ""
	a.recording = true
	a.mu.Unlock()
}

// Stop marks the session as no longer recording. Late results are still
// applied; callers should wait out FinalizationGrace before reading.
func (a *Accumulator) Stop() {
	a.mu.Lock()
	a.recording = false
	a.mu.Unlock()
}

// Apply folds one recognition result into the transcript.
func (a *Accumulator) Apply(res speech.Result) {
	text := strings.TrimSpace(res.Text)
	a.mu.Lock()
	defer a.mu.Unlock()

	if !res.IsFinal {
		// The recognizer re-sends a superset each time; replace, never append.
		a.interim = text
		return
	}

	if text != "" {
		if a.committed == "" {
			a.committed = text
		} else {
			a.committed = a.committed + " " + text
		}
	}
	a.interim = ""
	// Mirror into the backing copy so the committed text survives teardown.
	a.backing = a.committed

	lang := res.Language
	if lang == "" {
		lang = DetectLanguage(text)
	}
	if lang != "" {
		a.language = lang
	}
}

// SetFinal records an explicit final transcript, e.g. from the batched
// fallback service. It takes priority over accumulated state.
func (a *Accumulator) SetFinal(text string) {
	text = strings.TrimSpace(text)
	a.mu.Lock()
	a.final = text
	if text != "" {
		a.backing = text
	}
	a.mu.Unlock()
}

// HasText reports whether any transcript text is known.
func (a *Accumulator) HasText() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.final != "" || a.committed != "" || a.backing != ""
}

// Transcript returns the best known transcript: the explicit final text,
// then the committed text, then the backing copy, then the placeholder.
// It never returns an empty string.
func (a *Accumulator) Transcript() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	switch {
	case a.final != "":
		return a.final
	case a.committed != "":
		return a.committed
	case a.backing != "":
		return a.backing
	default:
		return Placeholder
	}
}

// Interim returns the current in-progress fragment, for live display.
func (a *Accumulator) Interim() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.interim
}

// Language returns the best known language label for the session.
func (a *Accumulator) Language() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.language != "" {
		return a.language
	}
	return DetectLanguage(a.committed)
}

// WaitFinal waits out the finalization grace period so late final results can
// land, then returns whether any transcript text is known. It returns early
// only if the context is done.
func (a *Accumulator) WaitFinal(ctx context.Context, grace time.Duration) bool {
	if grace <= 0 {
		grace = FinalizationGrace
	}
	timer := time.NewTimer(grace)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
	return a.HasText()
}

// Take returns the final transcript and clears all state including the
// backing copy. Used when the recording is sent.
func (a *Accumulator) Take() string {
	a.mu.Lock()
	var out string
	switch {
	case a.final != "":
		out = a.final
	case a.committed != "":
		out = a.committed
	case a.backing != "":
		out = a.backing
	default:
		out = Placeholder
	}
	a.committed = ""
	a.interim = ""
	a.backing = ""
	a.final = ""
	a.language = ""
	a.recording = false
	a.mu.Unlock()
	return out
}

// Discard clears all state including the backing copy without returning it.
func (a *Accumulator) Discard() {
	a.mu.Lock()
	a.committed = ""
	a.interim = ""
	a.backing = ""
	a.final = ""
	a.language = ""
	a.recording = false
	a.mu.Unlock()
}
