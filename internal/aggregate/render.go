package aggregate

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/mattn/go-runewidth"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var printer = message.NewPrinter(language.English)

var tableHeader = []string{"#", "Provider", "Owner", "Model", "Responses", "Correct", "Wrong", "Accuracy", "95% CI", "Avg Score", "Avg Latency"}

// rightAligned marks numeric columns.
var rightAligned = map[int]bool{0: true, 4: true, 5: true, 6: true, 7: true, 9: true, 10: true}

// WriteJSON writes rows as an indented JSON array.
func WriteJSON(w io.Writer, rows []Row) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if rows == nil {
		rows = []Row{}
	}
	return enc.Encode(rows)
}

// WriteTable writes rows as an aligned text table. Widths are measured in
// terminal cells so model names with wide characters stay aligned.
func WriteTable(w io.Writer, rows []Row) error {
	cells := [][]string{tableHeader}
	for i, r := range rows {
		cells = append(cells, []string{
			printer.Sprintf("%d", i+1),
			r.Provider,
			r.ModelOwner,
			r.ModelName,
			printer.Sprintf("%d", r.TotalResponses),
			printer.Sprintf("%d", r.CorrectAnswers),
			printer.Sprintf("%d", r.WrongAnswers),
			printer.Sprintf("%.2f", r.Accuracy),
			printer.Sprintf("%.1f-%.1f", 100*r.AccuracyCI.Lower, 100*r.AccuracyCI.Upper),
			printer.Sprintf("%.3f", r.AvgScore),
			printer.Sprintf("%.0f ms", r.AvgLatencyMs),
		})
	}

	widths := make([]int, len(tableHeader))
	for _, row := range cells {
		for i, c := range row {
			widths[i] = max(widths[i], runewidth.StringWidth(c))
		}
	}

	for n, row := range cells {
		parts := make([]string, len(row))
		for i, c := range row {
			if rightAligned[i] {
				parts[i] = padLeft(c, widths[i])
			} else {
				parts[i] = padRight(c, widths[i])
			}
		}
		if _, err := fmt.Fprintln(w, strings.TrimRight(strings.Join(parts, "  "), " ")); err != nil {
			return err
		}
		if n == 0 {
			rule := make([]string, len(widths))
			for i, wd := range widths {
				rule[i] = strings.Repeat("-", wd)
			}
			if _, err := fmt.Fprintln(w, strings.Join(rule, "  ")); err != nil {
				return err
			}
		}
	}
	return nil
}

func padRight(s string, width int) string {
	sw := runewidth.StringWidth(s)
	if sw >= width {
		return s
	}
	return s + strings.Repeat(" ", width-sw)
}

func padLeft(s string, width int) string {
	sw := runewidth.StringWidth(s)
	if sw >= width {
		return s
	}
	return strings.Repeat(" ", width-sw) + s
}
