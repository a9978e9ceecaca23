// Package sanitize strips hostile markup from user-supplied text before it
// reaches storage. Event names and language codes must be plain text; event
// descriptions may keep basic formatting.
package sanitize

import (
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var (
	// strictPolicy removes all HTML tags and attributes.
	strictPolicy = bluemonday.StrictPolicy()

	// ugcPolicy allows safe user-generated formatting: <p>, <b>, <i>,
	// <em>, <strong>, <a>, lists, <br>. Script, iframe, event handlers
	// and style attributes are removed.
	ugcPolicy = bluemonday.UGCPolicy()
)

// Text strips all HTML and surrounding whitespace. Use for event names and
// other plain-text fields.
func Text(input string) string {
	return strings.TrimSpace(strictPolicy.Sanitize(input))
}

// HTML keeps safe formatting tags and removes everything else. Use for
// event descriptions.
func HTML(input string) string {
	return strings.TrimSpace(ugcPolicy.Sanitize(input))
}
