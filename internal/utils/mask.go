package utils

import "strings"

// MaskIdentifier keeps the first and last two characters of an id.
// Identifiers of four characters or fewer are fully masked.
func MaskIdentifier(id string) string {
	r := []rune(id)
	if len(r) <= 4 {
		return strings.Repeat("*", len(r))
	}
	return string(r[:2]) + "****" + string(r[len(r)-2:])
}

// MaskEmail keeps the first character of the local part and the domain.
func MaskEmail(email string) string {
	if email == "" {
		return ""
	}
	at := strings.LastIndex(email, "@")
	if at <= 0 {
		return MaskIdentifier(email)
	}
	first := []rune(email[:at])[0]
	return string(first) + "***" + email[at:]
}

// MaskPhone hides every digit except the last four.
func MaskPhone(phone string) string {
	r := []rune(phone)
	if len(r) <= 4 {
		return strings.Repeat("*", len(r))
	}
	return strings.Repeat("*", len(r)-4) + string(r[len(r)-4:])
}
