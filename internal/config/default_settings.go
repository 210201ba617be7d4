package config

import (
	"github.com/tauraamui/dragondelay/pkg/camera"
	"github.com/tauraamui/dragondelay/pkg/configdef"
	"github.com/tauraamui/dragondelay/pkg/delay"
	"github.com/tauraamui/dragondelay/pkg/timeshift"
	"github.com/tauraamui/dragondelay/pkg/video/framering"
	"github.com/tauraamui/dragondelay/pkg/video/videosink"
)

type defaultSettingKey uint

const (
	DELAYSECONDS defaultSettingKey = iota
	MAXFRAMES
	MINTICKINTERVAL
	REFRESHRATE
	CAMERATITLE
	CAMERAADDRESS
	CAMERAWIDTH
	CAMERAHEIGHT
	SECONDSPERCLIP
	FPS
	ARCHIVEBATCH
)

var defaultSettings = map[defaultSettingKey]interface{}{
	DELAYSECONDS:    delay.Default,
	MAXFRAMES:       framering.DefaultMaxFrames,
	MINTICKINTERVAL: timeshift.DefaultMinTickInterval,
	REFRESHRATE:     timeshift.DefaultRefreshRate,
	CAMERATITLE:     "delayed",
	CAMERAADDRESS:   "0",
	CAMERAWIDTH:     camera.DefaultWidth,
	CAMERAHEIGHT:    camera.DefaultHeight,
	SECONDSPERCLIP:  2,
	FPS:             30,
	ARCHIVEBATCH:    videosink.DefaultArchiveBatch,
}

func defaultValues() configdef.Values {
	values := configdef.Values{
		DelaySeconds: defaultSettings[DELAYSECONDS].(float64),
		Output:       configdef.Output{Display: true},
	}
	applyDefaults(&values)
	return values
}

// applyDefaults fills in every setting left at its zero value. A zero
// delay is a valid choice, so delay_seconds is left alone.
func applyDefaults(values *configdef.Values) {
	if values.MaxFrames == 0 {
		values.MaxFrames = defaultSettings[MAXFRAMES].(int)
	}
	if values.MinTickIntervalMs == 0 {
		values.MinTickIntervalMs = defaultSettings[MINTICKINTERVAL].(float64)
	}
	if values.RefreshRate == 0 {
		values.RefreshRate = defaultSettings[REFRESHRATE].(int)
	}

	cam := &values.Camera
	if len(cam.Title) == 0 {
		cam.Title = defaultSettings[CAMERATITLE].(string)
	}
	if len(cam.Address) == 0 {
		cam.Address = defaultSettings[CAMERAADDRESS].(string)
	}
	if cam.Width == 0 {
		cam.Width = defaultSettings[CAMERAWIDTH].(int)
	}
	if cam.Height == 0 {
		cam.Height = defaultSettings[CAMERAHEIGHT].(int)
	}

	out := &values.Output
	if out.SecondsPerClip == 0 {
		out.SecondsPerClip = defaultSettings[SECONDSPERCLIP].(int)
	}
	if out.FPS == 0 {
		out.FPS = defaultSettings[FPS].(int)
	}
	if out.ArchiveBatch == 0 {
		out.ArchiveBatch = defaultSettings[ARCHIVEBATCH].(int)
	}
}
