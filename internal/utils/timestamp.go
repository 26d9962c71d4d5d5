package utils

import "time"

// MessageTimeLayout is how message timestamps are shown, e.g. "25 Jan 21:44".
const MessageTimeLayout = "02 Jan 15:04"

// FormatTimestamp renders the display timestamp a client stamps on a message
// at send time. Ordering never derives from it; it is presentation only.
func FormatTimestamp(t time.Time) string {
	return t.Format(MessageTimeLayout)
}
