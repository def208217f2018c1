package jobs

import (
	"time"

	"github.com/rs/zerolog/log"

	"github.com/stacyai/kiosk-agent-go/internal/orchestrator"
)

// IdleWatchdog ends the shopper session after a stretch with no input, the
// kiosk equivalent of walking away without pressing "End Trip".
type IdleWatchdog struct {
	orch     *orchestrator.Orchestrator
	timeout  time.Duration
	interval time.Duration
	end      func()
	done     chan struct{}
}

func NewIdleWatchdog(orch *orchestrator.Orchestrator, timeout, interval time.Duration, end func()) *IdleWatchdog {
	return &IdleWatchdog{
		orch:     orch,
		timeout:  timeout,
		interval: interval,
		end:      end,
		done:     make(chan struct{}),
	}
}

func (j *IdleWatchdog) Start() {
	go j.run()
	log.Info().Dur("interval", j.interval).Dur("timeout", j.timeout).Msg("idle watchdog started")
}

func (j *IdleWatchdog) Stop() {
	close(j.done)
	log.Info().Msg("idle watchdog stopped")
}

func (j *IdleWatchdog) run() {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-j.done:
			return
		case <-ticker.C:
			j.check()
		}
	}
}

func (j *IdleWatchdog) check() {
	if !j.orch.Active() {
		return
	}
	idle := time.Since(j.orch.LastActivity())
	if idle < j.timeout {
		return
	}

	log.Info().Dur("idle", idle).Msg("session idle, ending trip")
	j.end()
}
