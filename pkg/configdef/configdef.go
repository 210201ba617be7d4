package configdef

import (
	"errors"
	"fmt"
	"path/filepath"

	"gopkg.in/dealancer/validate.v2"
)

type Camera struct {
	Title   string `json:"title" validate:"empty=false"`
	Address string `json:"address"`
	Width   int    `json:"width" validate:"gte=0 & lte=7680"`
	Height  int    `json:"height" validate:"gte=0 & lte=4320"`
}

type Output struct {
	Display         bool   `json:"display"`
	PersistLocation string `json:"persist_location"`
	SecondsPerClip  int    `json:"seconds_per_clip" validate:"gte=1 & lte=30"`
	FPS             int    `json:"fps" validate:"gte=1 & lte=60"`
	ArchivePath     string `json:"archive_path"`
	ArchiveBatch    int    `json:"archive_batch" validate:"gte=1 & lte=600"`
}

// Values is the full daemon configuration. DelaySeconds is not validated,
// out of range delays are clamped when applied.
type Values struct {
	Debug             bool    `json:"debug"`
	DelaySeconds      float64 `json:"delay_seconds"`
	MaxFrames         int     `json:"max_frames" validate:"gte=1"`
	MinTickIntervalMs float64 `json:"min_tick_interval_ms" validate:"gte=0 & lte=1000"`
	RefreshRate       int     `json:"refresh_rate" validate:"gte=1 & lte=240"`
	Camera            Camera  `json:"camera"`
	Output            Output  `json:"output"`
}

func (v Values) RunValidate() error {
	if err := validate.Validate(&v); err != nil {
		return err
	}
	return v.Validate()
}

func (v Values) Validate() error {
	const validationErrorHeader = "validation failed: %w"
	if recordsAndArchivesToSamePath(v.Output) {
		return fmt.Errorf(validationErrorHeader, errors.New("clips and archive cannot share a location"))
	}
	return nil
}

func recordsAndArchivesToSamePath(output Output) bool {
	if len(output.PersistLocation) == 0 || len(output.ArchivePath) == 0 {
		return false
	}
	return filepath.Clean(output.PersistLocation) == filepath.Clean(output.ArchivePath)
}
