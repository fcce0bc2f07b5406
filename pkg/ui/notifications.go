package ui

import (
	"fmt"
	"os/exec"
	"runtime"
	"strings"

	"shotprobe/pkg/models"
)

// Notifier sends a desktop notification when a run ends. Notification
// failures are ignored.
type Notifier struct {
	goos string
	run  func(name string, args ...string) error
}

// NewNotifier creates a Notifier for the current platform
func NewNotifier() *Notifier {
	return &Notifier{
		goos: runtime.GOOS,
		run: func(name string, args ...string) error {
			return exec.Command(name, args...).Run()
		},
	}
}

// OnEvent is a no-op; only the end of the run is announced
func (n *Notifier) OnEvent(models.Event) {}

// OnFinish announces the run outcome
func (n *Notifier) OnFinish(stats models.Stats, runErr error) {
	title := "shotprobe finished"
	if runErr != nil {
		title = "shotprobe interrupted"
	}
	msg := fmt.Sprintf("%d screenshots saved from %d codes", stats.SuccessfulDownloads, stats.Attempts)
	n.Send(title, msg)
}

// Send delivers a notification if the platform supports it
func (n *Notifier) Send(title, message string) {
	name, args := notifyCommand(n.goos, title, message)
	if name == "" {
		return
	}
	_ = n.run(name, args...)
}

// notifyCommand returns the command that shows a notification on goos
func notifyCommand(goos, title, message string) (string, []string) {
	switch goos {
	case "linux", "freebsd", "openbsd":
		return "notify-send", []string{"--app-name=shotprobe", title, message}
	case "darwin":
		script := fmt.Sprintf(`display notification %q with title %q`, message, title)
		return "osascript", []string{"-e", script}
	case "windows":
		ps := `[Windows.UI.Notifications.ToastNotificationManager, Windows.UI.Notifications, ContentType = WindowsRuntime] | Out-Null
$t = [Windows.UI.Notifications.ToastNotificationManager]::GetTemplateContent([Windows.UI.Notifications.ToastTemplateType]::ToastText02)
$n = $t.GetElementsByTagName('text')
$n.Item(0).AppendChild($t.CreateTextNode('%s')) | Out-Null
$n.Item(1).AppendChild($t.CreateTextNode('%s')) | Out-Null
[Windows.UI.Notifications.ToastNotificationManager]::CreateToastNotifier('shotprobe').Show([Windows.UI.Notifications.ToastNotification]::new($t))`
		return "powershell", []string{"-NoProfile", "-NonInteractive", "-Command",
			fmt.Sprintf(ps, psQuote(title), psQuote(message))}
	}
	return "", nil
}

func psQuote(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}
