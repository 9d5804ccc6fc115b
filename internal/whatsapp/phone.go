package whatsapp

import "strings"

// FormatPhoneNumber rewrites Argentine mobile numbers received as 549<area><number>
// into the 54<area><number> form the send API accepts. Other numbers pass through.
func FormatPhoneNumber(number string) string {
	if strings.HasPrefix(number, "549") {
		return "54" + number[3:]
	}
	return number
}
