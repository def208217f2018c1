package speech

import (
	"context"
	"sync"
)

// Recognizer starts capture activations. The underlying microphone is a
// process-wide singleton; callers are expected to hold at most one live
// activation at a time.
type Recognizer interface {
	Start(ctx context.Context) (Activation, error)
}

// Activation is one live capture attempt. It produces exactly one terminal
// outcome, either a recognized utterance or an error, and then closes Done.
// The transcript sits in a single-slot buffer owned by the adapter until
// the consumer takes it after Done.
type Activation interface {
	// Stop cancels the activation. Done still closes; an activation stopped
	// before any utterance was recognized ends with an empty slot and no
	// error (user-cancelled).
	Stop()
	// Done closes after the terminal outcome has been recorded.
	Done() <-chan struct{}
	// Take atomically reads and clears the transcript slot. Valid after Done.
	Take() (string, bool)
	// Err returns the terminal capture error, if any. Valid after Done.
	Err() error
}

// Synthesizer plays spoken text. Speak blocks until playback finishes or
// fails; Cancel discards any current and queued speech.
type Synthesizer interface {
	Voices() []Voice
	Speak(ctx context.Context, text string, voice Voice) error
	Cancel()
}

// TranscriptSlot is a single-slot buffer bridging the recognition callback
// and the end-of-activation signal. Put overwrites; Take reads and clears.
type TranscriptSlot struct {
	mu   sync.Mutex
	text string
	full bool
}

func (s *TranscriptSlot) Put(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.text = text
	s.full = true
}

func (s *TranscriptSlot) Take() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	text, ok := s.text, s.full
	s.text, s.full = "", false
	return text, ok
}
