package record

import "strings"

// AllowedCategories is the fixed set of listing categories the marketplace
// exposes. Category mutations must match one of these case-insensitively or
// be rejected before any network call.
var AllowedCategories = []string{
	"Web Design",
	"Web Development",
	"Graphic Design",
	"Digital Marketing",
	"Content Writing",
	"Video & Animation",
	"Consulting",
}

// NormalizeCategory maps any casing of an allowed category to its canonical
// label. Returns false when the input is not in the allowed set.
func NormalizeCategory(input string) (string, bool) {
	needle := strings.ToLower(strings.TrimSpace(input))
	if needle == "" {
		return "", false
	}
	for _, label := range AllowedCategories {
		if strings.ToLower(label) == needle {
			return label, true
		}
	}
	return "", false
}

// AllowedCategoryList renders the canonical labels for failure messages.
func AllowedCategoryList() string {
	return strings.Join(AllowedCategories, ", ")
}
