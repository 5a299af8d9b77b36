package output

import (
	"fmt"
	"strings"
)

// MarkdownFormatter renders values as markdown tables.
type MarkdownFormatter struct{}

func (f *MarkdownFormatter) Format(value any) (string, error) {
	sections, err := sectionsFor(value)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	for i, section := range sections {
		if i > 0 {
			sb.WriteString("\n")
		}
		if section.Title != "" {
			sb.WriteString(fmt.Sprintf("## %s\n\n", escapeMarkdownCell(section.Title)))
		}
		writeMarkdownRow(&sb, section.Header)
		separators := make([]string, len(section.Header))
		for j := range separators {
			separators[j] = "---"
		}
		sb.WriteString("|" + strings.Join(separators, "|") + "|\n")
		for _, row := range section.Rows {
			writeMarkdownRow(&sb, row)
		}
		if section.Footer != "" {
			sb.WriteString(fmt.Sprintf("\n_%s_\n", escapeMarkdownCell(section.Footer)))
		}
	}
	return sb.String(), nil
}

func writeMarkdownRow(sb *strings.Builder, cells []string) {
	escaped := make([]string, len(cells))
	for i, cell := range cells {
		escaped[i] = escapeMarkdownCell(cell)
	}
	sb.WriteString("| " + strings.Join(escaped, " | ") + " |\n")
}

func escapeMarkdownCell(value string) string {
	return strings.ReplaceAll(value, "|", "\\|")
}
