package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeHexColor(t *testing.T) {
	tests := []struct {
		name   string
		raw    string
		want   string
		wantOK bool
	}{
		{"six_digits", "FF0000", "FF0000", true},
		{"six_digits_hash", "#00ff00", "00ff00", true},
		{"eight_digits", "80FF0000", "80FF0000", true},
		{"eight_digits_hash", "#80FF0000", "80FF0000", true},
		{"padded", "  FF0000  ", "FF0000", true},
		{"empty", "", "", false},
		{"blank", "   ", "", false},
		{"short", "F00", "", false},
		{"seven_digits", "FF00000", "", false},
		{"not_hex", "GG0000", "", false},
		{"named_color", "red", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := NormalizeHexColor(tt.raw)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEffectiveStatus(t *testing.T) {
	tests := []struct {
		status string
		want   string
	}{
		{"closed", StatusClosed},
		{"CLOSED", StatusClosed},
		{" pending ", StatusPending},
		{"warning", StatusWarning},
		{"error", StatusError},
		{"note", StatusNote},
		{"open", StatusTodo},
		{"", StatusTodo},
		{"shipped", StatusTodo},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, EffectiveStatus(tt.status), "status %q", tt.status)
	}
}
