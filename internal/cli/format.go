package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/rivo/uniseg"
)

var (
	// out and errOut are swapped by tests.
	out    io.Writer = os.Stdout
	errOut io.Writer = os.Stderr

	// Color functions - fatih/color disables them when output is not a TTY
	successColor = color.New(color.FgGreen, color.Bold)
	warningColor = color.New(color.FgYellow, color.Bold)
	errorColor   = color.New(color.FgRed, color.Bold)
	infoColor    = color.New(color.FgCyan)
	headerColor  = color.New(color.FgBlue, color.Bold)
	labelColor   = color.New(color.FgWhite, color.Bold)
	valueColor   = color.New(color.FgHiBlack)
	dimColor     = color.New(color.FgHiBlack)
)

// PrintSection prints a section header
func PrintSection(title string) {
	_, _ = fmt.Fprintln(out)
	_, _ = headerColor.Fprintf(out, "▸ %s\n", title)
	_, _ = fmt.Fprintln(out)
}

// PrintSuccess prints a success message with a checkmark
func PrintSuccess(msg string) {
	_, _ = successColor.Fprintf(out, "✓ %s\n", msg)
}

// PrintWarning prints a warning message with a warning symbol
func PrintWarning(msg string) {
	_, _ = warningColor.Fprintf(out, "⚠ %s\n", msg)
}

// PrintError prints an error message to stderr
func PrintError(msg string) {
	_, _ = errorColor.Fprintf(errOut, "✗ %s\n", msg)
}

// PrintInfo prints an informational message
func PrintInfo(msg string) {
	_, _ = fmt.Fprintln(out, msg)
}

// PrintLabelValue prints a label-value pair with proper formatting
func PrintLabelValue(label, value string) {
	_, _ = labelColor.Fprintf(out, "  %s: ", label)
	_, _ = valueColor.Fprintln(out, value)
}

// PrintLabelValueWithColor prints a label-value pair with a custom value color
func PrintLabelValueWithColor(label, value string, valueClr *color.Color) {
	_, _ = labelColor.Fprintf(out, "  %s: ", label)
	_, _ = valueClr.Fprintln(out, value)
}

// PrintList prints a list of items with bullet points
func PrintList(items []string, indent int) {
	indentStr := strings.Repeat("  ", indent)
	for _, item := range items {
		_, _ = infoColor.Fprintf(out, "%s• %s\n", indentStr, item)
	}
}

// PrintTable prints a table with a header row
func PrintTable(headers []string, rows [][]string) {
	fprintTable(out, headers, rows, true)
}

// fprintTable writes a table to w. Colors are only used when colored is set,
// so the same layout can go to a file.
func fprintTable(w io.Writer, headers []string, rows [][]string, colored bool) {
	if len(headers) == 0 || len(rows) == 0 {
		return
	}

	header, value := pickColor(headerColor, colored), pickColor(valueColor, colored)

	// Calculate column widths
	colWidths := make([]int, len(headers))
	for i, h := range headers {
		colWidths[i] = displayWidth(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if i < len(colWidths) && displayWidth(cell) > colWidths[i] {
				colWidths[i] = displayWidth(cell)
			}
		}
	}

	// Print header
	_, _ = fmt.Fprint(w, "  ")
	for i, h := range headers {
		if i > 0 {
			_, _ = fmt.Fprint(w, "  ")
		}
		_, _ = header.Fprint(w, pad(h, colWidths[i]))
	}
	_, _ = fmt.Fprintln(w)

	// Print separator
	_, _ = fmt.Fprint(w, "  ")
	for i, width := range colWidths {
		if i > 0 {
			_, _ = fmt.Fprint(w, "  ")
		}
		_, _ = fmt.Fprint(w, strings.Repeat("-", width))
	}
	_, _ = fmt.Fprintln(w)

	// Print rows
	for _, row := range rows {
		_, _ = fmt.Fprint(w, "  ")
		for i, cell := range row {
			if i >= len(colWidths) {
				break
			}
			if i > 0 {
				_, _ = fmt.Fprint(w, "  ")
			}
			_, _ = value.Fprint(w, pad(cell, colWidths[i]))
		}
		_, _ = fmt.Fprintln(w)
	}
}

// plain prints without escape codes regardless of the terminal.
var plain = func() *color.Color {
	c := color.New()
	c.DisableColor()
	return c
}()

// PrintEmptyState prints a message when there's no data to show
func PrintEmptyState(msg string) {
	_, _ = dimColor.Fprintf(out, "  %s\n", msg)
}

// PrintCount prints a count with proper formatting
func PrintCount(count int, singular, plural string) string {
	if count == 1 {
		return fmt.Sprintf("%d %s", count, singular)
	}
	return fmt.Sprintf("%d %s", count, plural)
}

func pad(s string, width int) string {
	if n := displayWidth(s); n < width {
		return s + strings.Repeat(" ", width-n)
	}
	return s
}

// displayWidth counts terminal cells, so wide characters in page titles do
// not break column alignment.
func displayWidth(s string) int {
	return uniseg.StringWidth(s)
}
