package doctor

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/railsplan/railsplan/internal/appcontext"
)

// ReportFormat selects the doctor report file format
type ReportFormat string

const (
	ReportMarkdown ReportFormat = "markdown"
	ReportJSON     ReportFormat = "json"
)

// ParseReportFormat validates a --report value
func ParseReportFormat(s string) (ReportFormat, error) {
	switch strings.ToLower(s) {
	case "markdown", "md":
		return ReportMarkdown, nil
	case "json":
		return ReportJSON, nil
	}
	return "", fmt.Errorf("unknown report format %q (expected markdown or json)", s)
}

// ReportPath is where a report of the given format is written
func ReportPath(appRoot string, format ReportFormat) string {
	ext := "md"
	if format == ReportJSON {
		ext = "json"
	}
	return filepath.Join(appRoot, appcontext.StateDir, "doctor_report."+ext)
}

// WriteReport writes report into .railsplan/ and returns the file path
func WriteReport(appRoot string, report *Report, format ReportFormat) (string, error) {
	var data []byte
	switch format {
	case ReportJSON:
		raw, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			return "", fmt.Errorf("failed to encode report: %w", err)
		}
		data = append(raw, '\n')
	case ReportMarkdown:
		data = RenderMarkdown(report)
	default:
		return "", fmt.Errorf("unknown report format %q", format)
	}

	path := ReportPath(appRoot, format)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("failed to create %s: %w", appcontext.StateDir, err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write report: %w", err)
	}
	return path, nil
}

// RenderMarkdown renders report as a Markdown document
func RenderMarkdown(report *Report) []byte {
	var buf bytes.Buffer

	buf.WriteString("# railsplan doctor report\n\n")
	buf.WriteString(fmt.Sprintf("Generated: %s\n\n", report.GeneratedAt.Format("2006-01-02 15:04:05 UTC")))
	buf.WriteString(fmt.Sprintf("- Total issues: %d\n", report.TotalIssues))
	buf.WriteString(fmt.Sprintf("- Fixable issues: %d\n\n", report.FixableIssues))

	if len(report.Issues) == 0 {
		buf.WriteString("No issues found.\n")
		return buf.Bytes()
	}

	buf.WriteString("| Severity | Check | Message | Fix |\n")
	buf.WriteString("|----------|-------|---------|-----|\n")
	for _, issue := range report.Issues {
		fix := issue.Fix
		if issue.Fixable {
			fix += " (auto)"
		}
		buf.WriteString(fmt.Sprintf("| %s | %s | %s | %s |\n",
			issue.Severity, issue.ID, escapeCell(issue.Message), escapeCell(fix)))
	}
	return buf.Bytes()
}

func escapeCell(s string) string {
	return strings.ReplaceAll(s, "|", "\\|")
}
