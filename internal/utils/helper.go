package utils

import (
	"encoding/json"
	"net/http"
	"strings"
)

func StrPtr(s string) *string {
	return &s
}

func PtrString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// WriteJSON writes v with the given status code.
func WriteJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func WriteJSONError(w http.ResponseWriter, message string, code int) {
	WriteJSON(w, code, map[string]any{"success": false, "error": message})
}

// NormalizePhoneGH converts a Ghanaian number to the 233XXXXXXXXX form used
// by SMS gateways. It returns "" when nothing usable remains.
func NormalizePhoneGH(phone string) string {
	var b strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()

	switch {
	case digits == "":
		return ""
	case strings.HasPrefix(digits, "00233"):
		return digits[2:]
	case strings.HasPrefix(digits, "0") && len(digits) == 10:
		return "233" + digits[1:]
	case len(digits) == 9 && !strings.HasPrefix(digits, "233"):
		return "233" + digits
	}
	return digits
}
