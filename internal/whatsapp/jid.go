package whatsapp

import (
	"strings"
	"unicode"

	"github.com/ricochet1k/wamux/internal/domain"
)

// UserServer is the address domain of individual WhatsApp accounts.
const UserServer = "s.whatsapp.net"

const userSuffix = "@" + UserServer

// NormalizeRecipient turns a phone number in any common notation, or an
// already suffixed user address, into "<digits>@s.whatsapp.net".
func NormalizeRecipient(to string) (string, error) {
	to = strings.TrimSpace(to)
	to = strings.TrimSuffix(to, userSuffix)

	var b strings.Builder
	for _, r := range to {
		if unicode.IsDigit(r) && r <= unicode.MaxASCII {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return "", domain.InvalidArgument("recipient %q has no digits", to)
	}
	return b.String() + userSuffix, nil
}
