package slave

// LED drives the optional heartbeat pattern described in spec.md §4.D: a
// periodic tick callback toggles an indicator at roughly freqHz/12 with a
// short double-blink, suspended while a complete packet is latched and
// waiting for the worker — giving the operator a visual cue that packet
// processing is stuck.
type LED struct {
	dev    *Device
	set    func(on bool)
	freq   float64
	ticks  uint64
	period uint64
}

// NewLED attaches a heartbeat driver to dev. freqHz is the rate at which
// the caller promises to invoke Tick (the periodic callback, distinct
// from Device.Tick). set is called with the desired LED state.
func NewLED(dev *Device, freqHz float64, set func(on bool)) *LED {
	period := uint64(1)
	if freqHz > 0 {
		period = uint64(freqHz / (freqHz / 12))
		if period == 0 {
			period = 1
		}
	}
	return &LED{dev: dev, set: set, freq: freqHz, period: period}
}

// Tick advances the heartbeat by one period of the caller's timer. It must
// be called at freqHz for the resulting pattern to land near freqHz/12.
func (l *LED) Tick() {
	l.dev.mu.Lock()
	stuck := l.dev.hasCompletePacket
	l.dev.mu.Unlock()
	if stuck {
		// Suspend blinking while a packet sits unprocessed: a stopped
		// LED is the operator's cue that the worker isn't calling Tick.
		return
	}

	l.ticks++
	phase := l.ticks % (l.period * 2)
	// A short double-blink: on for the first tenth of the low half,
	// briefly again just after, off otherwise.
	doubleBlinkWidth := l.period/10 + 1
	on := phase < doubleBlinkWidth || (phase > l.period/2 && phase < l.period/2+doubleBlinkWidth)
	l.set(on)
}
