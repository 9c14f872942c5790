// Package discovery runs the two-pass GitHub search, repo hydration, and LLM
// analysis pipeline described by the Discovery Pipeline component.
package discovery

import (
	"fmt"
	"strings"
	"time"
)

// SearchParams describes one query's tunable knobs, shared by pass 1 and
// pass 2 (pass 2 supplies its own stars/maxStars window per query).
type SearchParams struct {
	Query           string
	Days            int
	Stars           int
	MaxStars        int
	Language        string
	IncludeForks    bool
	IncludeArchived bool
	InReadme        bool
}

// BuildQualifiedQuery assembles a search string per the qualifier grammar:
// "{user_query} stars:{...} pushed:>=YYYY-MM-DD archived:{true|false}"
// followed by fork:false, language:{L}, and in:readme when applicable.
// Qualifier ordering is stable so the same params always produce the same
// string (load-bearing for the github_queries audit trail and for tests).
func BuildQualifiedQuery(p SearchParams, now time.Time) string {
	var b strings.Builder
	b.WriteString(strings.TrimSpace(p.Query))

	if p.MaxStars > 0 {
		fmt.Fprintf(&b, " stars:%d..%d", p.Stars, p.MaxStars)
	} else {
		fmt.Fprintf(&b, " stars:>=%d", p.Stars)
	}

	since := now.AddDate(0, 0, -p.Days)
	fmt.Fprintf(&b, " pushed:>=%s", since.Format("2006-01-02"))

	fmt.Fprintf(&b, " archived:%t", p.IncludeArchived)

	if !p.IncludeForks {
		b.WriteString(" fork:false")
	}
	if p.Language != "" {
		fmt.Fprintf(&b, " language:%s", p.Language)
	}
	if p.InReadme {
		b.WriteString(" in:readme")
	}

	return b.String()
}
