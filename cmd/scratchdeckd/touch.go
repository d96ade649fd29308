package main

// ============================================================================
// Touch Translation Layer
// ============================================================================
//
// Translates raw evdev touch events into gesture actions. Evdev delivers
// state piecewise (BTN_TOUCH, ABS_X, ABS_Y, ...) and marks the end of a
// hardware frame with SYN_REPORT; nothing is emitted until the frame is
// complete, so DragStart always carries coordinates from the same frame as
// the contact.
//
// Both single-touch (ABS_X/ABS_Y) and protocol-B multitouch panels
// (ABS_MT_POSITION_X/Y) are handled; only the first contact drives the deck.
// ============================================================================

// touchTracker accumulates evdev events into complete touch frames.
type touchTracker struct {
	x, y float64
	down bool

	// Pending frame flags, cleared on SYN_REPORT.
	sawDown bool
	sawUp   bool
	sawMove bool

	// Contact reported before the panel sent coordinates; DragStart is
	// deferred until a frame carries both axes.
	pendingDown bool

	// Coordinates are unknown until the panel has reported each axis once.
	haveX bool
	haveY bool
}

// Update feeds one raw event into the tracker and returns gesture actions to
// dispatch. Events are only produced on SYN_REPORT; all other event types
// update pending frame state and return nil.
func (t *touchTracker) Update(ev inputEvent) []Event {
	switch ev.Type {
	case EV_KEY:
		if ev.Code != BTN_TOUCH {
			return nil
		}
		switch ev.Value {
		case evValuePress:
			t.sawDown = true
		case evValueRelease:
			t.sawUp = true
		}
		return nil

	case EV_ABS:
		switch ev.Code {
		case ABS_X, ABS_MT_POSITION_X:
			t.x = float64(ev.Value)
			t.haveX = true
			t.sawMove = true
		case ABS_Y, ABS_MT_POSITION_Y:
			t.y = float64(ev.Value)
			t.haveY = true
			t.sawMove = true
		}
		return nil

	case EV_SYN:
		if ev.Code != SYN_REPORT {
			return nil
		}
		return t.flushFrame()

	default:
		return nil
	}
}

// flushFrame resolves the accumulated frame into zero or more actions.
func (t *touchTracker) flushFrame() []Event {
	sawDown, sawUp, sawMove := t.sawDown, t.sawUp, t.sawMove
	t.sawDown, t.sawUp, t.sawMove = false, false, false

	var out []Event

	startedThisFrame := false
	if (sawDown || t.pendingDown) && !t.down {
		if t.haveX && t.haveY {
			t.down = true
			t.pendingDown = false
			startedThisFrame = true
			out = append(out, DragStart{X: t.x, Y: t.y})
		} else {
			t.pendingDown = true
		}
	}

	if sawMove && t.down && !startedThisFrame {
		out = append(out, DragMove{X: t.x, Y: t.y})
	}

	if sawUp {
		t.pendingDown = false
		if t.down {
			t.down = false
			out = append(out, DragEnd{})
		}
	}

	return out
}
