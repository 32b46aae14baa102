package protocol

import "strings"

// Status values with dedicated styling on every form. Anything else,
// including blank and "open", falls back to the todo default.
const (
	StatusClosed  = "closed"
	StatusPending = "pending"
	StatusWarning = "warning"
	StatusError   = "error"
	StatusNote    = "note"
	StatusTodo    = "todo"
)

func isHexDigits(s string) bool {
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
		case r >= 'a' && r <= 'f':
		case r >= 'A' && r <= 'F':
		default:
			return false
		}
	}
	return true
}

// NormalizeHexColor validates a server color string. Accepts RRGGBB or
// AARRGGBB with or without a leading '#'; returns the digits without the
// prefix. Invalid input is treated as absent, never as an error.
func NormalizeHexColor(raw string) (string, bool) {
	s := strings.TrimPrefix(strings.TrimSpace(raw), "#")
	if len(s) != 6 && len(s) != 8 {
		return "", false
	}
	if !isHexDigits(s) {
		return "", false
	}
	return s, true
}

// ValidHexColor reports whether raw parses as a 6- or 8-hex-digit color.
func ValidHexColor(raw string) bool {
	_, ok := NormalizeHexColor(raw)
	return ok
}

// EffectiveStatus resolves the styling bucket for a status string. An
// explicit valid StatusColor wins over the status mapping; that precedence is
// applied by callers via NormalizeHexColor.
func EffectiveStatus(status string) string {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case StatusClosed:
		return StatusClosed
	case StatusPending:
		return StatusPending
	case StatusWarning:
		return StatusWarning
	case StatusError:
		return StatusError
	case StatusNote:
		return StatusNote
	default:
		return StatusTodo
	}
}
