package i18n

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/text/language"
)

func TestMatch(t *testing.T) {
	cases := map[string]language.Tag{
		"en":      language.English,
		"en-GB":   language.English,
		"es":      language.Spanish,
		"es-MX":   language.Spanish,
		"de":      language.English,
		"garbage": language.English,
		"":        language.English,
	}
	for in, want := range cases {
		assert.Equal(t, want, Match(in), "locale %q", in)
	}
}

func TestNewPrinter(t *testing.T) {
	es := NewPrinter(language.Spanish)
	assert.Equal(t, "Código QR no válido", es.Sprintf(MsgInvalidQR))
	assert.Equal(t, "Este evento aún no ha comenzado. Empieza el 2025-06-01.", es.Sprintf(MsgEventNotStarted, "2025-06-01"))

	en := NewPrinter(language.English)
	assert.Equal(t, "Invalid QR code", en.Sprintf(MsgInvalidQR))
	assert.Equal(t, "This event has not started yet. It starts on 2025-06-01.", en.Sprintf(MsgEventNotStarted, "2025-06-01"))
}
