package psrp

import (
	"encoding/hex"
	"html"
	"regexp"
	"unicode/utf16"
)

// clixmlEscape matches the CLIXML [MS-PSRP] 2.2.5.3 escape sequence
// _xHHHH_, where HHHH is a UTF-16BE code unit in hex.
var clixmlEscape = regexp.MustCompile(`_x([0-9A-Fa-f]{4})_`)

// DeserializeString decodes CLIXML _xHHHH_ escapes in serialized, and
// optionally unescapes HTML entities afterward (used for prompt text,
// spec §4.4).
func DeserializeString(serialized string, htmlDecode bool) string {
	out := clixmlEscape.ReplaceAllStringFunc(serialized, func(match string) string {
		hexDigits := match[2 : len(match)-1]
		raw, err := hex.DecodeString(hexDigits)
		if err != nil || len(raw) != 2 {
			return match
		}
		unit := uint16(raw[0])<<8 | uint16(raw[1])
		r := utf16.Decode([]uint16{unit})
		return string(r)
	})
	if htmlDecode {
		out = html.UnescapeString(out)
	}
	return out
}
