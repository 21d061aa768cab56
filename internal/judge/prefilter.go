// Package judge is the pipeline's last line of defense: it decides whether
// the evidence in the request actually supports the justification the
// agent declared, using a deterministic pre-filter, a shared verdict
// cache and an external model.
package judge

import (
	"regexp"
	"strings"
)

// attackPatterns is the fixed deterministic pre-filter. A match here
// blocks immediately with full confidence; no model call is made.
var attackPatterns = []string{
	`DROP\s+TABLE`,
	`DELETE\s+FROM`,
	`TRUNCATE\s+TABLE`,
	`ALTER\s+TABLE`,
	`INSERT\s+INTO.*VALUES`,
	`UPDATE\s+.*SET`,
	`exec\s*\(`,
	`eval\s*\(`,
	`<script>`,
	`javascript:`,
	`rm\s+-rf`,
	`curl\s+.*\|.*sh`,
	`wget\s+.*\|.*sh`,
}

var attackRegex = regexp.MustCompile("(?i)" + strings.Join(attackPatterns, "|"))

// PreCheck scans the evidence for known attack patterns and returns the
// matched fragment.
func PreCheck(evidence string) (string, bool) {
	match := attackRegex.FindString(evidence)
	return match, match != ""
}
