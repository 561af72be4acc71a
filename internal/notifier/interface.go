package notifier

// TextNotifier is the minimal push interface the agent core depends on.
// Concrete transports (Telegram, ...) live behind it.
type TextNotifier interface {
	SendText(text string) error
}

// PhotoNotifier optionally attaches an image (report snapshot) to a push.
type PhotoNotifier interface {
	SendPhoto(caption string, png []byte) error
}

// Nop discards every notification. Used when notify is disabled.
type Nop struct{}

func (Nop) SendText(string) error          { return nil }
func (Nop) SendPhoto(string, []byte) error { return nil }
