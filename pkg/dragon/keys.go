package dragon

import (
	"github.com/tauraamui/dragondelay/pkg/delay"
	"github.com/tauraamui/dragondelay/pkg/log"
)

// shiftedDigits maps the symbols on a US layout number row back to
// the digit key they share.
var shiftedDigits = map[rune]rune{
	'!': '1', '@': '2', '#': '3', '$': '4', '%': '5',
	'^': '6', '&': '7', '*': '8', '(': '9', ')': '0',
}

// HandleKey acts on one key press and reports whether it asks to quit.
// Space toggles playback, a digit sets the delay in tenths of a second
// and a shifted digit sets it in whole seconds.
func (s *Server) HandleKey(r rune) bool {
	switch r {
	case 'q', 'Q':
		return true
	case ' ':
		s.mu.Lock()
		ctx := s.ctx
		s.mu.Unlock()
		if err := s.scheduler.Toggle(ctx); err != nil {
			log.Error("Unable to resume delayed playback: %v", err)
		}
		return false
	}

	shift := false
	if digit, ok := shiftedDigits[r]; ok {
		r, shift = digit, true
	}
	if seconds, ok := delay.FromKey(r, shift); ok {
		s.scheduler.SetDelay(seconds)
	}
	return false
}
