// Package textutil holds small string helpers shared across the service.
package textutil

import "strings"

// NormalizeStringMap trims keys and values and drops entries with empty keys.
// Payment metadata passes through here before it is attached to a Stripe
// intent, so a nil result means "send no metadata at all".
func NormalizeStringMap(values map[string]string) map[string]string {
	if len(values) == 0 {
		return nil
	}
	result := make(map[string]string, len(values))
	for key, value := range values {
		trimmedKey := strings.TrimSpace(key)
		if trimmedKey == "" {
			continue
		}
		result[trimmedKey] = strings.TrimSpace(value)
	}
	if len(result) == 0 {
		return nil
	}
	return result
}
