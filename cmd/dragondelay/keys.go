package main

import (
	"bufio"
	"os"

	"github.com/tauraamui/dragondelay/pkg/log"
	"golang.org/x/term"
)

type keyHandler interface {
	HandleKey(rune) bool
}

const ctrlC = 0x03

// listenForKeys puts an interactive stdin into raw mode and passes each
// key press to handler, closing quit when one asks to. The returned func
// puts the terminal back how it was.
func listenForKeys(handler keyHandler, quit chan struct{}) func() {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return func() {}
	}

	state, err := term.MakeRaw(fd)
	if err != nil {
		log.Warn("Keyboard controls unavailable: %v", err)
		return func() {}
	}
	log.Info("Keyboard controls: space start/stop, 0-9 delay in tenths, shift+0-9 delay in seconds, q quit")

	go readKeys(bufio.NewReader(os.Stdin), handler, quit)

	return func() {
		if err := term.Restore(fd, state); err != nil {
			log.Error("Unable to restore terminal: %v", err)
		}
	}
}

func readKeys(reader *bufio.Reader, handler keyHandler, quit chan struct{}) {
	for {
		r, _, err := reader.ReadRune()
		if err != nil {
			return
		}
		if r == ctrlC || handler.HandleKey(r) {
			close(quit)
			return
		}
	}
}
