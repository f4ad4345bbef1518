package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/ekaya-inc/ekaya-linkage/pkg/models"
)

// Output formats accepted by --format.
const (
	FormatText = "text"
	FormatJSON = "json"
)

func renderJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newTable(w io.Writer, title string, header table.Row) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.SetTitle(title)
	t.AppendHeader(header)
	return t
}

func joinValues(values []string, more int) string {
	s := strings.Join(values, ", ")
	if more > 0 {
		s += fmt.Sprintf(" (+%d more)", more)
	}
	return s
}

func renderSuggestions(w io.Writer, suggestions []models.LinkSuggestion) {
	if len(suggestions) == 0 {
		_, _ = fmt.Fprintln(w, "No new link suggestions.")
		return
	}
	t := newTable(w, "Suggested links", table.Row{"Kind", "Checked", "Reference", "Match", "Common", "Score", "Key"})
	for _, s := range suggestions {
		key := ""
		if s.IsKey {
			key = "yes"
		}
		t.AppendRow(table.Row{
			s.Kind,
			s.TargetTable + "." + s.TargetColumn,
			s.SourceTable + "." + s.SourceColumn,
			strconv.Itoa(s.MatchPercentage) + "%",
			s.CommonValues,
			fmt.Sprintf("%.2f", s.Score),
			key,
		})
	}
	t.Render()
}

func renderReport(w io.Writer, r *models.ValidationReport) {
	if len(r.SetupErrors) > 0 {
		t := newTable(w, "Setup errors", table.Row{"Pair", "Kind", "Message"})
		for _, e := range r.SetupErrors {
			t.AppendRow(table.Row{e.Pair, e.Kind, e.Message})
		}
		t.Render()
	}

	if len(r.Errors) > 0 {
		t := newTable(w, "Integrity errors", table.Row{"Column", "Reference", "Missing", "Checked values", "Missing values"})
		for _, e := range r.Errors {
			t.AppendRow(table.Row{
				e.FKTable + "." + e.FKColumn,
				e.PKTable + "." + e.PKColumn,
				e.MissingCount,
				e.TotalFKValues,
				joinValues(e.MissingValues, e.MoreMissing),
			})
		}
		t.Render()
	}

	if len(r.Reconciliation) > 0 {
		t := newTable(w, "Reconciliation", table.Row{"Finding", "Source", "Target", "Key", "Column", "Expected", "Actual"})
		for _, f := range r.Reconciliation {
			t.AppendRow(table.Row{f.Type, f.SourceTable, f.TargetTable, f.Key, f.Column, f.Expected, f.Actual})
		}
		t.Render()
	}

	if len(r.Forbidden) > 0 {
		t := newTable(w, "Forbidden values", table.Row{"Column", "Forbidden list", "Count", "Values"})
		for _, f := range r.Forbidden {
			t.AppendRow(table.Row{
				f.TargetTable + "." + f.Column,
				f.ForbiddenTable + "." + f.ForbiddenColumn,
				f.Count,
				joinValues(f.FoundValues, 0),
			})
		}
		t.Render()
	}

	if len(r.RuleFailures) > 0 {
		renderRuleFailures(w, r.RuleFailures)
	}

	_, _ = fmt.Fprintf(w, "Checks: %d  Passed: %d  Failed: %d\n",
		r.Summary.TotalChecks, r.Summary.Passed, r.Summary.Failed)
}

func renderRuleFailures(w io.Writer, failures []models.RuleFailure) {
	t := newTable(w, "Rule failures", table.Row{"Column", "Rule", "Description", "Failed", "Rows"})
	for _, f := range failures {
		rows := make([]string, 0, len(f.Samples))
		for _, s := range f.Samples {
			rows = append(rows, fmt.Sprintf("%d=%q", s.RowIndex+1, s.Value))
		}
		t.AppendRow(table.Row{f.Table + "." + f.Column, f.RuleType, f.Description, f.FailedCount, strings.Join(rows, " ")})
	}
	t.Render()
}

func renderWarnings(w io.Writer, warnings []string) {
	for _, warning := range warnings {
		_, _ = fmt.Fprintf(w, "warning: %s\n", warning)
	}
}
