// Package lifecycle guards long-running loops with a small state machine.
//
// The playback engine's tick loop and the capture listener both run under
// a Manager, which refuses a second concurrent Run, records how the loop
// ended and lets another goroutine cancel it and wait for it to exit.
//
// Valid state transitions:
//   - Stopped -> Starting
//   - Starting -> Running, Crashed
//   - Running -> Stopping, Crashed
//   - Stopping -> Stopped, Crashed
//   - Crashed -> Starting
//
// Usage:
//
//	m := lifecycle.NewManager(logger, nil)
//	go m.Run(ctx, "playback", engine.loop)
//	...
//	_ = m.Shutdown(5 * time.Second)
package lifecycle
