package config

import (
	"github.com/tauraamui/dragondelay/internal/config"
	"github.com/tauraamui/dragondelay/pkg/configdef"
)

type Destroyer interface {
	configdef.Destroyer
}

func DefaultDestroyer() Destroyer {
	return config.DefaultDestroyer()
}
