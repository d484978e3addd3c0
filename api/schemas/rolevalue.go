package schemas

import "strings"

// Role locators carry both the ARIA role and the accessible name in a single
// locator value. ARIA role tokens never contain ':', so the first colon is an
// unambiguous separator even when the name itself contains one.

// EncodeRoleValue packs a role and accessible name into a locator value.
func EncodeRoleValue(role, name string) string {
	return role + ":" + name
}

// DecodeRoleValue unpacks a role locator value.
func DecodeRoleValue(v string) (role, name string) {
	parts := strings.SplitN(v, ":", 2)
	if len(parts) == 1 {
		return parts[0], ""
	}
	return parts[0], parts[1]
}
