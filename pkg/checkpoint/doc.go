// Package checkpoint saves and restores the progress of a probe run.
//
// A checkpoint records the run ID, the attempt budget, the running
// statistics and the codes downloaded so far. It is rewritten atomically
// every few attempts by a Saver registered on the prober, deleted when the
// run completes and kept when the run is interrupted, so the next run can
// pick up the remaining attempts with --resume.
//
// Checkpoints live under $XDG_DATA_HOME/shotprobe/checkpoints/ on every
// platform (see github.com/adrg/xdg for the per-OS defaults).
package checkpoint
