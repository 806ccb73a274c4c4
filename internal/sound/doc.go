// Package sound drives external circuitry from an ordinary audio output.
//
// Each configured channel becomes one interleaved output channel carrying a
// pulse-width-modulated square wave: within every carrier period the channel is
// held at full scale for a number of samples proportional to its intensity and
// is silent for the rest. The carrier alternates polarity every period so that
// its long-run average is zero, which keeps AC-coupled outputs happy.
//
// The sample generation runs inside the audio backend's realtime callback.
// A Device never writes buffers itself; its WriteOutput method is a watchdog
// that checks the callback is still running.
package sound
