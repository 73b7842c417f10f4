package notify

import "github.com/gen2brain/beeep"

// Sink delivers out-of-app alerts. Both calls are fire-and-forget from the
// dispatcher's point of view; errors are used only to remember that the
// platform refused desktop alerts so we stop asking.
type Sink interface {
	PlaySound() error
	ShowDesktopAlert(title, body string) error
}

// BeeepSink delivers alerts through the platform notification facilities.
type BeeepSink struct{}

var _ Sink = BeeepSink{}

// PlaySound plays the platform alert sound.
func (BeeepSink) PlaySound() error {
	return beeep.Beep(beeep.DefaultFreq, beeep.DefaultDuration)
}

// ShowDesktopAlert raises a desktop notification.
func (BeeepSink) ShowDesktopAlert(title, body string) error {
	return beeep.Notify(title, body, "")
}
