package scheduling

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDate(t *testing.T) {
	bogota, err := time.LoadLocation("America/Bogota")
	require.NoError(t, err)
	// Thursday.
	today := time.Date(2026, 10, 15, 11, 30, 0, 0, bogota)

	cases := []struct {
		text string
		want string
		ok   bool
	}{
		{"2026-10-20", "2026-10-20", true},
		{"hoy", "2026-10-15", true},
		{"mañana", "2026-10-16", true},
		{"manana temprano", "2026-10-16", true},
		{"pasado mañana", "2026-10-17", true},
		{"tomorrow", "2026-10-16", true},
		{"el lunes", "2026-10-19", true},
		{"el jueves", "2026-10-22", true},
		{"sábado", "2026-10-17", true},
		{"el 20/10", "2026-10-20", true},
		{"20/11/2026", "2026-11-20", true},
		{"por la mañana", "", false},
		{"12/03", "", false},
		{"2025-01-01", "", false},
		{"31/02", "", false},
		{"cuando puedan", "", false},
	}
	for _, tc := range cases {
		t.Run(tc.text, func(t *testing.T) {
			got, ok := ParseDate(tc.text, today)
			require.Equal(t, tc.ok, ok)
			if ok {
				assert.Equal(t, tc.want, FormatDate(got))
				assert.Equal(t, bogota, got.Location())
			}
		})
	}
}
