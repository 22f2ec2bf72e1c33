package rows

import (
	"strings"
	"sync"

	"github.com/microcosm-cc/bluemonday"
)

var (
	policyOnce sync.Once
	policy     *bluemonday.Policy
)

// ContentPolicy is the allow-list applied to article bodies before they are
// stored in a row set.
func ContentPolicy() *bluemonday.Policy {
	policyOnce.Do(func() {
		p := bluemonday.NewPolicy()
		p.AllowElements(
			"p", "br", "strong", "em", "u", "a", "ul", "ol", "li",
			"h1", "h2", "h3", "h4", "h5", "h6",
			"blockquote", "code", "pre", "div", "span",
		)
		p.AllowAttrs("href").OnElements("a")
		p.AllowAttrs("target", "rel", "class").Globally()
		p.AllowStandardURLs()
		p.RequireParseableURLs(true)
		policy = p
	})
	return policy
}

// SanitizeContent strips everything outside the allow-list from html.
func SanitizeContent(html string) string {
	return strings.TrimSpace(ContentPolicy().Sanitize(html))
}

var strict = bluemonday.StrictPolicy()

// ContentPolicyStrict removes every tag from html, keeping the text.
func ContentPolicyStrict(html string) string {
	return strings.TrimSpace(strict.Sanitize(html))
}
