package config

import (
	"github.com/tauraamui/dragondelay/internal/config"
	"github.com/tauraamui/dragondelay/pkg/configdef"
)

type Creator interface {
	configdef.Creator
}

func DefaultCreator() Creator {
	return config.DefaultCreator()
}
