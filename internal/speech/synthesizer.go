package speech

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
)

// ExecSynthesizer drives a command-line speech engine (espeak-ng by
// default). One process per Speak call; Cancel kills the current one.
type ExecSynthesizer struct {
	command string

	mu      sync.Mutex
	current *exec.Cmd
	voices  []Voice
	listed  bool
}

func NewExecSynthesizer(command string) *ExecSynthesizer {
	if command == "" {
		command = "espeak-ng"
	}
	return &ExecSynthesizer{command: command}
}

// Voices enumerates the engine's voice list once and caches it. If the
// engine cannot be queried an English default is returned so playback still
// has a voice to select.
func (s *ExecSynthesizer) Voices() []Voice {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listed {
		return s.voices
	}
	s.listed = true

	out, err := exec.Command(s.command, "--voices=en").Output()
	if err != nil {
		log.Warn().Err(err).Str("command", s.command).Msg("voice enumeration failed, using default voice")
		s.voices = []Voice{{Name: "english", Lang: "en-US", Gender: "F"}}
		return s.voices
	}

	s.voices = parseVoiceList(out)
	if len(s.voices) == 0 {
		s.voices = []Voice{{Name: "english", Lang: "en-US", Gender: "F"}}
	}
	return s.voices
}

func (s *ExecSynthesizer) Speak(ctx context.Context, text string, voice Voice) error {
	cmd := exec.CommandContext(ctx, s.command, "-v", voice.Name, text)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	s.mu.Lock()
	s.current = cmd
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		if s.current == cmd {
			s.current = nil
		}
		s.mu.Unlock()
	}()

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		detail := strings.TrimSpace(stderr.String())
		if detail != "" {
			return fmt.Errorf("speech engine failed: %w: %s", err, detail)
		}
		return fmt.Errorf("speech engine failed: %w", err)
	}
	return nil
}

// Cancel kills any in-flight playback. Queued speech does not exist at this
// layer: the engine runs one utterance per process.
func (s *ExecSynthesizer) Cancel() {
	s.mu.Lock()
	cmd := s.current
	s.mu.Unlock()

	if cmd != nil && cmd.Process != nil {
		_ = cmd.Process.Kill()
	}
}

// parseVoiceList reads espeak-style voice tables: columns are priority,
// language, age/gender (e.g. "M"/"F"), voice name, file.
func parseVoiceList(out []byte) []Voice {
	var voices []Voice

	scanner := bufio.NewScanner(bytes.NewReader(out))
	first := true
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if first { // header row
			first = false
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 4 {
			continue
		}
		gender := fields[2]
		if i := strings.IndexByte(gender, '/'); i >= 0 {
			gender = gender[i+1:]
		}
		voices = append(voices, Voice{
			Lang:   fields[1],
			Gender: gender,
			Name:   fields[3],
		})
	}
	return voices
}
