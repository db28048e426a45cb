package cleaner

import (
	"bytes"
	"strings"

	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
)

// ApplyCSSSelector returns the concatenated outer HTML of every element of
// rawHTML matching selector, and whether anything matched.
//
// With no match the original rawHTML comes back unchanged, so platform
// strategies degrade to whole-page sampling when a site changes its markup.
func ApplyCSSSelector(rawHTML string, selector string) (string, bool, error) {
	sel, err := cascadia.Parse(selector)
	if err != nil {
		return "", false, err
	}

	doc, err := html.Parse(strings.NewReader(rawHTML))
	if err != nil {
		return "", false, err
	}

	matches := cascadia.QueryAll(doc, sel)
	if len(matches) == 0 {
		return rawHTML, false, nil
	}

	var buf bytes.Buffer
	for _, node := range matches {
		if err := html.Render(&buf, node); err != nil {
			return "", false, err
		}
	}

	return buf.String(), true, nil
}
