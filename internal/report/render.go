package report

import (
	"fmt"
	"slices"
	"strings"
)

// Subject summarizes ledger counts, e.g. "Indexed 3 results, skipped 1 results".
func Subject(indexed, skipped, erred int) string {
	subject := fmt.Sprintf("Indexed %d results", indexed)
	if skipped > 0 {
		subject += fmt.Sprintf(", skipped %d results", skipped)
	}
	if erred > 0 {
		subject += fmt.Sprintf(", w/ %d errors", erred)
	}
	return subject
}

// Render builds the report body: the labelled subject line followed by the
// non-empty ledgers, each sorted, under underlined headings.
func Render(label, subject string, indexed, erred, skipped []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s - %s\n", label, subject)
	section(&b, "Indexed Results", indexed)
	section(&b, "Results producing errors", erred)
	section(&b, "Skipped Results", skipped)
	return b.String()
}

func section(b *strings.Builder, title string, entries []string) {
	if len(entries) == 0 {
		return
	}
	sorted := slices.Clone(entries)
	slices.Sort(sorted)
	fmt.Fprintf(b, "\n%s\n%s\n", title, strings.Repeat("=", len(title)))
	for _, entry := range sorted {
		b.WriteString(entry)
		b.WriteByte('\n')
	}
}
