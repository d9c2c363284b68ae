package replay

import "time"

// driver is the autonomous clock advancing a playing machine. It never
// touches machine state itself; it schedules ticks that the owning
// Session applies under its lock, tagged with the generation current at
// schedule time so stale ticks are discarded on fire.
type driver struct {
	clk      clock
	minDwell time.Duration
	maxDwell time.Duration
	pending  timer
}

func newDriver(clk clock, minDwell, maxDwell time.Duration) *driver {
	if minDwell <= 0 {
		minDwell = 50 * time.Millisecond
	}
	if maxDwell < minDwell {
		maxDwell = 5 * time.Second
	}
	return &driver{clk: clk, minDwell: minDwell, maxDwell: maxDwell}
}

// dwell computes the real-time delay before the next advance: the
// recorded gap divided by the speed multiplier, clamped so clustered
// events don't flood subscribers and sparse ones don't stall playback.
func (d *driver) dwell(curTs, nextTs int64, speed float64) time.Duration {
	gap := time.Duration(nextTs-curTs) * time.Millisecond
	dwell := time.Duration(float64(gap) / speed)
	if dwell < d.minDwell {
		dwell = d.minDwell
	}
	if dwell > d.maxDwell {
		dwell = d.maxDwell
	}
	return dwell
}

// schedule arms a single tick after the given dwell, replacing any
// pending one.
func (d *driver) schedule(dwell time.Duration, fn func()) {
	d.cancel()
	d.pending = d.clk.AfterFunc(dwell, fn)
}

// cancel stops the pending tick, if any. A tick that already fired is
// rejected by its stale generation instead.
func (d *driver) cancel() {
	if d.pending != nil {
		d.pending.Stop()
		d.pending = nil
	}
}
