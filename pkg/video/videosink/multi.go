package videosink

import (
	"github.com/tauraamui/dragondelay/pkg/log"
	"github.com/tauraamui/dragondelay/pkg/timeshift"
	"github.com/tauraamui/dragondelay/pkg/video/videoframe"
)

type multi []timeshift.Sink

// Multi fans every emitted frame out to each of sinks in order.
func Multi(sinks ...timeshift.Sink) timeshift.Sink {
	m := make(multi, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			m = append(m, s)
		}
	}
	return m
}

// Bind binds every sink, on failure the ones already bound are unbound again.
func (m multi) Bind(dims videoframe.Dimensions) error {
	for i, s := range m {
		if err := s.Bind(dims); err != nil {
			for j := i - 1; j >= 0; j-- {
				if uerr := m[j].Unbind(); uerr != nil {
					log.Error("Unable to unbind output after failed bind: %v", uerr)
				}
			}
			return err
		}
	}
	return nil
}

// Emit delivers to every sink and reports the first failure.
func (m multi) Emit(f videoframe.Stamped) error {
	var first error
	for _, s := range m {
		if err := s.Emit(f); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (m multi) Unbind() error {
	var first error
	for _, s := range m {
		if err := s.Unbind(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
