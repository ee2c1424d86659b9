package record

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeCategoryTotalOverAllowedSet(t *testing.T) {
	for _, label := range AllowedCategories {
		for _, variant := range []string{
			label,
			strings.ToLower(label),
			strings.ToUpper(label),
			"  " + label + "  ",
		} {
			got, ok := NormalizeCategory(variant)
			require.True(t, ok, "variant %q must normalize", variant)
			assert.Equal(t, label, got)
		}
	}
}

func TestNormalizeCategoryRejectsUnknown(t *testing.T) {
	for _, input := range []string{"", "   ", "Plumbing", "web", "Design"} {
		_, ok := NormalizeCategory(input)
		assert.False(t, ok, "input %q", input)
	}
}

func TestAllowedCategoryListQuotesEveryLabel(t *testing.T) {
	rendered := AllowedCategoryList()
	for _, label := range AllowedCategories {
		assert.Contains(t, rendered, label)
	}
}
