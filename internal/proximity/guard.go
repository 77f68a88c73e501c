// Package proximity converts proximity-sensor readings into a screen-dimming
// wake guard while a call is active. Devices without a proximity sensor get
// a silent no-op guard.
package proximity

import (
	"log/slog"
	"sync"
)

// Sensor is the device proximity sensor. Subscribe delivers readings on a
// sensor-owned goroutine until Unsubscribe is called.
type Sensor interface {
	Exists() bool
	Subscribe(fn func(distance, maxRange float64)) error
	Unsubscribe()
}

// WakeLock dims the screen while held. Acquire and Release are expected to
// be idempotent at the device layer; the guard still tracks held state so
// it never leaks an acquisition.
type WakeLock interface {
	Acquire()
	Release()
	IsHeld() bool
}

// Guard ties the wake lock to proximity-near events for the duration of a
// call. Safe for concurrent use: sensor callbacks may race Disengage, and
// after Disengage returns the lock is released no matter the ordering.
type Guard struct {
	sensor Sensor
	lock   WakeLock
	logger *slog.Logger

	mu      sync.Mutex
	engaged bool
}

// NewGuard creates a guard over the given sensor and wake lock.
func NewGuard(sensor Sensor, lock WakeLock, logger *slog.Logger) *Guard {
	return &Guard{
		sensor: sensor,
		lock:   lock,
		logger: logger.With("subsystem", "proximity"),
	}
}

// Engage subscribes to sensor readings. Absence of a proximity sensor is
// not an error; the guard simply stays inert. Engaging an engaged guard is
// a no-op.
func (g *Guard) Engage() {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.engaged {
		return
	}
	if !g.sensor.Exists() {
		g.logger.Debug("no proximity sensor, guard inactive")
		return
	}

	if err := g.sensor.Subscribe(g.OnSensorReading); err != nil {
		g.logger.Warn("proximity sensor subscription failed", "error", err)
		return
	}
	g.engaged = true
}

// OnSensorReading acquires the wake lock when an object is near the sensor
// (distance below the sensor's maximum range) and releases it otherwise.
// Readings arriving after Disengage are discarded.
func (g *Guard) OnSensorReading(distance, maxRange float64) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.engaged {
		return
	}

	if distance < maxRange {
		if !g.lock.IsHeld() {
			g.lock.Acquire()
		}
	} else {
		if g.lock.IsHeld() {
			g.lock.Release()
		}
	}
}

// Disengage unsubscribes from the sensor and unconditionally releases the
// wake lock if held. It must run on every session exit path and is safe to
// call repeatedly and concurrently with an in-flight reading.
func (g *Guard) Disengage() {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.engaged {
		g.sensor.Unsubscribe()
		g.engaged = false
	}
	if g.lock.IsHeld() {
		g.lock.Release()
	}
}

// Held reports whether the wake lock is currently held.
func (g *Guard) Held() bool {
	return g.lock.IsHeld()
}
