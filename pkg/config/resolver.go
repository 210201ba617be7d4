package config

import (
	"context"
	"time"

	"github.com/tauraamui/dragondelay/internal/config"
	"github.com/tauraamui/dragondelay/pkg/configdef"
)

type Resolver interface {
	configdef.Resolver
}

func DefaultResolver() Resolver {
	return config.DefaultResolver()
}

// Watch reports the config each time its file is rewritten until ctx is done.
func Watch(ctx context.Context, interval time.Duration, onChange func(configdef.Values)) error {
	return config.Watch(ctx, interval, onChange)
}
