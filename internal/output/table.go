package output

import (
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
)

// TableFormatter renders values as rounded ASCII tables, one per section.
type TableFormatter struct{}

func (f *TableFormatter) Format(value any) (string, error) {
	sections, err := sectionsFor(value)
	if err != nil {
		return "", err
	}

	rendered := make([]string, 0, len(sections))
	for _, section := range sections {
		t := table.NewWriter()
		t.SetStyle(table.StyleRounded)
		if section.Title != "" {
			t.SetTitle(section.Title)
		}
		t.AppendHeader(toRow(section.Header))
		for _, row := range section.Rows {
			t.AppendRow(toRow(row))
		}
		if section.Footer != "" {
			footer := make([]string, len(section.Header))
			footer[0] = section.Footer
			t.AppendFooter(toRow(footer))
		}
		rendered = append(rendered, t.Render())
	}
	return strings.Join(rendered, "\n\n"), nil
}

func toRow(cells []string) table.Row {
	row := make(table.Row, len(cells))
	for i, cell := range cells {
		row[i] = cell
	}
	return row
}
