package integritysync

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/mmdatafocus/vehicle_integrity/models"
	"github.com/xuri/excelize/v2"
)

// AlertReport is what the orchestrator hands to a Notifier when a run finds discrepancies.
type AlertReport struct {
	Subject       string                        `json:"subject"`
	Body          string                        `json:"body"`
	HTML          string                        `json:"html"`
	Run           models.SyncRun                `json:"run"`
	Tampered      []models.IntegrityCheckResult `json:"tampered"`
	NotRegistered []models.IntegrityCheckResult `json:"notRegistered"`
	GeneratedAt   time.Time                     `json:"generatedAt"`
}

var alertHTML = template.Must(template.New("alert").Parse(`<h2>Vehicle integrity discrepancies</h2>
<p>Run {{.Run.CorrelationId}}: {{.Run.TotalChecked}} checked, {{.Run.Matched}} matched, {{.Run.Mismatched}} mismatched, {{.Run.NotOnBlockchain}} not on blockchain, {{.Run.Errors}} errors.</p>
{{- if .Tampered}}
<h3>Mismatched vehicles</h3>
<table border="1" cellpadding="4" cellspacing="0">
<tr><th>VIN</th><th>Field</th><th>Database</th><th>Blockchain</th></tr>
{{- range .Tampered}}{{$vin := .Vin}}{{range .Mismatches}}
<tr><td>{{$vin}}</td><td>{{.Field}}</td><td>{{.DbValue}}</td><td>{{.LedgerValue}}</td></tr>
{{- end}}{{end}}
</table>
{{- end}}
{{- if .NotRegistered}}
<h3>Not on blockchain</h3>
<ul>
{{- range .NotRegistered}}
<li>{{.Vin}}{{with .DbVehicle}} ({{.PlateNumber}}, {{.Make}} {{.Model}}){{end}}</li>
{{- end}}
</ul>
{{- end}}
<p>Generated {{.GeneratedAt.Format "2006-01-02 15:04:05 MST"}}</p>
`))

// BuildAlertReport renders the report for a finished run.
func BuildAlertReport(run models.SyncRun, tampered, notRegistered []models.IntegrityCheckResult, now time.Time) (AlertReport, error) {
	r := AlertReport{
		Subject: fmt.Sprintf("[Vehicle Integrity] %d discrepancies detected (%d mismatched, %d not on blockchain)",
			run.Mismatched+run.NotOnBlockchain, run.Mismatched, run.NotOnBlockchain),
		Run:           run,
		Tampered:      tampered,
		NotRegistered: notRegistered,
		GeneratedAt:   now,
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Integrity sync %s found discrepancies.\n", run.CorrelationId)
	fmt.Fprintf(&b, "Checked: %d, matched: %d, mismatched: %d, not on blockchain: %d, errors: %d\n",
		run.TotalChecked, run.Matched, run.Mismatched, run.NotOnBlockchain, run.Errors)
	if len(tampered) > 0 {
		b.WriteString("\nMismatched vehicles:\n")
		for _, t := range tampered {
			var fields []string
			for _, m := range t.Mismatches() {
				fields = append(fields, m.Field)
			}
			fmt.Fprintf(&b, "- %s (fields: %s)\n", t.Vin, strings.Join(fields, ", "))
		}
	}
	if len(notRegistered) > 0 {
		b.WriteString("\nNot on blockchain:\n")
		for _, n := range notRegistered {
			fmt.Fprintf(&b, "- %s\n", n.Vin)
		}
	}
	r.Body = b.String()

	var html bytes.Buffer
	if err := alertHTML.Execute(&html, r); err != nil {
		return AlertReport{}, err
	}
	r.HTML = html.String()
	return r, nil
}

// XLSX renders the discrepancies as a workbook with one sheet per category.
func (r AlertReport) XLSX() ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	const mismatchSheet = "Mismatched"
	const missingSheet = "NotOnBlockchain"

	if err := f.SetSheetName("Sheet1", mismatchSheet); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(missingSheet); err != nil {
		return nil, err
	}

	if err := setRow(f, mismatchSheet, 1, "VIN", "Field", "Database", "Blockchain"); err != nil {
		return nil, err
	}
	row := 2
	for _, t := range r.Tampered {
		for _, m := range t.Mismatches() {
			if err := setRow(f, mismatchSheet, row, t.Vin, m.Field, m.DbValue, m.LedgerValue); err != nil {
				return nil, err
			}
			row++
		}
	}

	if err := setRow(f, missingSheet, 1, "VIN", "PlateNumber", "Make", "Model", "Year"); err != nil {
		return nil, err
	}
	for i, n := range r.NotRegistered {
		vals := []interface{}{n.Vin, "", "", "", ""}
		if v := n.DbVehicle; v != nil {
			vals = []interface{}{n.Vin, v.PlateNumber, v.Make, v.Model, v.Year}
		}
		if err := setRow(f, missingSheet, i+2, vals...); err != nil {
			return nil, err
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func setRow(f *excelize.File, sheet string, row int, values ...interface{}) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	return f.SetSheetRow(sheet, cell, &values)
}
