package main

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
)

// inputEvent mirrors the kernel's struct input_event on 64-bit platforms: a
// struct timeval (two 64-bit words) followed by type, code and value.
type inputEvent struct {
	Sec   int64
	Usec  int64
	Type  uint16
	Code  uint16
	Value int32
}

// inputEventSize is the encoded size of one event record as read from
// /dev/input.
const inputEventSize = 24

// decodeInputEvent decodes one little-endian event record. Reports false for
// a short buffer.
func decodeInputEvent(buf []byte) (inputEvent, bool) {
	if len(buf) < inputEventSize {
		return inputEvent{}, false
	}
	return inputEvent{
		Sec:   int64(binary.LittleEndian.Uint64(buf[0:8])),
		Usec:  int64(binary.LittleEndian.Uint64(buf[8:16])),
		Type:  binary.LittleEndian.Uint16(buf[16:18]),
		Code:  binary.LittleEndian.Uint16(buf[18:20]),
		Value: int32(binary.LittleEndian.Uint32(buf[20:24])),
	}, true
}

// readInputEvents services a single touch panel with plain blocking reads.
// Used when exactly one device is configured; multi-panel setups go through
// readInputEventsEpoll so one goroutine can watch them all.
func readInputEvents(f *os.File, events chan<- inputEvent, readErr chan<- error) {
	buf := make([]byte, inputEventSize)
	for {
		if _, err := io.ReadFull(f, buf); err != nil {
			readErr <- fmt.Errorf("read from %s: %w", f.Name(), err)
			return
		}
		ev, ok := decodeInputEvent(buf)
		if !ok {
			continue
		}
		events <- ev
	}
}
