// Package i18n holds the localized notices shown to venue staff and the
// locale negotiation used for the Accept-Language header.
package i18n

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"
)

// Message keys. The English text doubles as the key.
const (
	MsgAccepted        = "Attendance marked successfully!"
	MsgAlreadyUsed     = "This ticket has already been marked as attended!"
	MsgEventEnded      = "This event has already ended."
	MsgEventNotStarted = "This event has not started yet. It starts on %s."
	MsgMutationFailed  = "Failed to mark attendance"
	MsgInvalidTicket   = "Failed to validate ticket"
	MsgInvalidQR       = "Invalid QR code"
	MsgAdminRequired   = "Only administrators can create events"
	MsgEventWindow     = "End date must be after start date"
)

// Supported lists the locales with a translation, default first.
var Supported = []language.Tag{language.English, language.Spanish}

var spanish = map[string]string{
	MsgAccepted:        "¡Asistencia registrada correctamente!",
	MsgAlreadyUsed:     "¡Esta entrada ya fue marcada como asistida!",
	MsgEventEnded:      "Este evento ya ha terminado.",
	MsgEventNotStarted: "Este evento aún no ha comenzado. Empieza el %s.",
	MsgMutationFailed:  "No se pudo registrar la asistencia",
	MsgInvalidTicket:   "No se pudo validar la entrada",
	MsgInvalidQR:       "Código QR no válido",
	MsgAdminRequired:   "Solo los administradores pueden crear eventos",
	MsgEventWindow:     "La fecha de fin debe ser posterior a la fecha de inicio",
}

var (
	matcher = language.NewMatcher(Supported)
	cat     = newCatalog()
)

func newCatalog() *catalog.Builder {
	b := catalog.NewBuilder(catalog.Fallback(language.English))
	for key, es := range spanish {
		if err := b.SetString(language.English, key, key); err != nil {
			panic(err)
		}
		if err := b.SetString(language.Spanish, key, es); err != nil {
			panic(err)
		}
	}
	return b
}

// Match returns the supported tag closest to locale, English when nothing matches.
func Match(locale string) language.Tag {
	tag, err := language.Parse(locale)
	if err != nil {
		return language.English
	}
	_, idx, _ := matcher.Match(tag)
	return Supported[idx]
}

// NewPrinter returns a printer that renders the notices in tag's language.
func NewPrinter(tag language.Tag) *message.Printer {
	return message.NewPrinter(tag, message.Catalog(cat))
}
