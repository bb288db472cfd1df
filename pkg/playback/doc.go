// Package playback replays a dataset over the network in simulated time.
//
// A Timeline maps wall-clock ticks to dataset time at an adjustable speed.
// A Scheduler orders pending records by timestamp. The Engine ties them to
// a dataset and a dispatch.Sender:
//
//	eng := playback.NewEngine(root, sender)
//	go eng.Run(ctx)
//	if err := eng.Start(ctx, "capture-1"); err != nil { ... }
//	eng.SetSpeed(2)
//
// Status moves Stopped -> Playing <-> Paused, Playing -> Completed at the
// end of the dataset, and back to Stopped on Stop or on a read error.
package playback
