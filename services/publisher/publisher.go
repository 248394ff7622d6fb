// Package publisher delivers announcements and operator alerts to Telegram
// and mirrors published offers to a Redis stream.
package publisher

// Level is the severity of an operator alert
type Level string

// Alert levels
const (
	LevelError   Level = "ERROR"
	LevelWarning Level = "WARNING"
	LevelSuccess Level = "SUCCESS"
	LevelInfo    Level = "INFO"
)

// Emoji returns the marker shown in front of an alert
func (l Level) Emoji() string {
	switch l {
	case LevelError:
		return "🔴"
	case LevelWarning:
		return "🟡"
	case LevelSuccess:
		return "🟢"
	case LevelInfo:
		return "🔵"
	default:
		return "❓"
	}
}

// ButtonText is the label of the inline button under each announcement
const ButtonText = "Ver oferta"

// DefaultAPIURL is the Telegram Bot API endpoint
const DefaultAPIURL = "https://api.telegram.org"
