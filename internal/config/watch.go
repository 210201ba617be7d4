package config

import (
	"context"
	"time"

	"github.com/radovskyb/watcher"
	"github.com/tauraamui/dragondelay/pkg/configdef"
	"github.com/tauraamui/dragondelay/pkg/log"
	"github.com/tauraamui/xerror"
)

const DefaultWatchInterval = time.Second

// Watch polls the config file every interval and passes freshly loaded
// values to onChange after each write. Values which fail to load are
// logged and skipped. Watching ends when ctx is cancelled.
func Watch(ctx context.Context, interval time.Duration, onChange func(configdef.Values)) error {
	path, err := resolveConfigPath()
	if err != nil {
		return err
	}

	if interval <= 0 {
		interval = DefaultWatchInterval
	}

	w := watcher.New()
	w.SetMaxEvents(1)
	w.FilterOps(watcher.Write, watcher.Create)
	if err := w.Add(path); err != nil {
		return xerror.Errorf("unable to watch config file %s: %w", path, err)
	}

	go func() {
		done := ctx.Done()
		for {
			select {
			case <-done:
				done = nil
				// the watcher may be blocked handing over an event
				go w.Close()
			case event := <-w.Event:
				if ctx.Err() != nil {
					continue
				}
				log.Debug("Config file changed: %s", event.Path)
				values, err := load()
				if err != nil {
					log.Error("Unable to reload config: %v", err)
					continue
				}
				onChange(values)
			case err := <-w.Error:
				log.Error("Config watcher failed: %v", err)
			case <-w.Closed:
				return
			}
		}
	}()

	go func() {
		if err := w.Start(interval); err != nil {
			log.Error("Unable to start config watcher: %v", err)
		}
	}()
	w.Wait()

	log.Info("Watching config file %s for changes", path)
	return nil
}
