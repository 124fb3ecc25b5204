package verifier

import (
	"fmt"
	"strings"

	"dev/bravebird/page-verifier/pkg/models"
)

// selectorAttributes in priority order
var selectorAttributes = []string{"aria-label", "name", "placeholder", "data-testid"}

// Selector returns the CSS selector for a target
func Selector(target *models.Target) string {
	if target == nil {
		return ""
	}
	if target.Selector != "" {
		return target.Selector
	}

	tag := strings.ToLower(target.Tag)
	for _, attr := range selectorAttributes {
		if val := target.Attributes[attr]; val != "" {
			if attr == "data-testid" {
				return fmt.Sprintf("[data-testid='%s']", quoteAttr(val))
			}
			return fmt.Sprintf("%s[%s='%s']", tag, attr, quoteAttr(val))
		}
	}

	return tag
}

func quoteAttr(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `'`, `\'`)
}
