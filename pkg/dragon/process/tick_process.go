package process

import (
	"context"
	"time"
)

type TickSettings struct {
	WaitForShutdownMsg string
	Interval           time.Duration
	Tick               func()
}

// NewTickProcess invokes Tick on every interval until stopped. Once
// Wait returns after Stop, Tick is not running and will not run again.
func NewTickProcess(settings TickSettings) Process {
	interval := settings.Interval
	if interval <= 0 {
		interval = time.Second / 60
	}
	return New(Settings{
		WaitForShutdownMsg: settings.WaitForShutdownMsg,
		Process: func(ctx context.Context) []chan interface{} {
			stopping := make(chan interface{})
			go runTicks(ctx, interval, settings.Tick, stopping)
			return []chan interface{}{stopping}
		},
	})
}

func runTicks(ctx context.Context, interval time.Duration, tick func(), stopping chan interface{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	defer close(stopping)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// a tick racing the cancel must not run after Stop
			if ctx.Err() != nil {
				return
			}
			tick()
		}
	}
}
