package ui

import "shotprobe/pkg/models"

// Display is a user-facing view of a probe run. Both the line-oriented
// console and the full-screen TUI implement it, and both are registered as
// prober observers.
type Display interface {
	OnEvent(e models.Event)
	OnFinish(stats models.Stats, runErr error)
	LogInfo(format string, args ...interface{})
	LogSuccess(format string, args ...interface{})
	LogWarning(format string, args ...interface{})
	LogError(format string, args ...interface{})
}
