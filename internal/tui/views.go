package tui

import (
	"strings"

	"github.com/brizzai/fhir-chart/internal/chart"
	"github.com/brizzai/fhir-chart/internal/fhir"
	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/lipgloss"
)

const defaultTableHeight = 12

func observationColumns(name string) []table.Column {
	return []table.Column{
		{Title: name, Width: 28},
		{Title: "Value", Width: 16},
		{Title: "Reference Range", Width: 18},
		{Title: "Status", Width: 10},
		{Title: "Date", Width: 20},
	}
}

var medicationColumns = []table.Column{
	{Title: "Medication", Width: 32},
	{Title: "Status", Width: 10},
	{Title: "Dosage", Width: 28},
	{Title: "Authored", Width: 20},
}

// newTable creates the table of a list tab, or false for the demographics tab.
func newTable(tab chart.TabID) (table.Model, bool) {
	var columns []table.Column
	switch tab {
	case chart.TabLabs:
		columns = observationColumns("Test")
	case chart.TabVitals:
		columns = observationColumns("Vital")
	case chart.TabMedications:
		columns = medicationColumns
	default:
		return table.Model{}, false
	}

	width := 0
	for _, c := range columns {
		width += c.Width + 2
	}

	t := table.New(
		table.WithColumns(columns),
		table.WithFocused(true),
		table.WithHeight(defaultTableHeight),
		table.WithWidth(width),
	)
	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(accent).
		BorderBottom(true).
		Bold(true)
	s.Selected = s.Selected.
		Foreground(lipgloss.Color("#15202b")).
		Background(accent)
	t.SetStyles(s)
	return t, true
}

func observationRows(observations []fhir.Observation) []table.Row {
	rows := make([]table.Row, 0, len(observations))
	for _, o := range observations {
		rng := ""
		if len(o.ReferenceRange) > 0 {
			rng = o.ReferenceRange[0].String()
		}
		rows = append(rows, table.Row{
			o.Code.Display(),
			o.Value(),
			rng,
			o.Status,
			o.EffectiveDateTime,
		})
	}
	return rows
}

func medicationRows(medications []fhir.MedicationRequest) []table.Row {
	rows := make([]table.Row, 0, len(medications))
	for _, m := range medications {
		dosages := make([]string, 0, len(m.DosageInstruction))
		for _, d := range m.DosageInstruction {
			if s := d.String(); s != "" {
				dosages = append(dosages, s)
			}
		}
		rows = append(rows, table.Row{
			m.MedicationCodeableConcept.Display(),
			m.Status,
			strings.Join(dosages, "; "),
			m.AuthoredOn,
		})
	}
	return rows
}

// rowsFor converts the payload of a list tab into table rows.
func rowsFor(r chart.Result) []table.Row {
	switch r.Tab {
	case chart.TabLabs, chart.TabVitals:
		return observationRows(r.Observations)
	case chart.TabMedications:
		return medicationRows(r.Medications)
	}
	return nil
}

func demographicsPanel(p *fhir.Patient, width int) string {
	if p == nil {
		return emptyMessageStyle("No patient data")
	}

	field := func(label, value string) string {
		if value == "" {
			value = "-"
		}
		return lipgloss.JoinHorizontal(lipgloss.Top, fieldLabelStyle.Render(label), value)
	}

	lines := []string{
		field("Name", p.DisplayName()),
		field("Patient ID", p.ID),
		field("Birth Date", p.BirthDate),
		field("Gender", p.Gender),
	}
	if len(p.Address) == 0 {
		lines = append(lines, field("Address", ""))
	}
	for i, a := range p.Address {
		label := ""
		if i == 0 {
			label = "Address"
		}
		lines = append(lines, field(label, a.String()))
	}

	style := panelStyle
	if width > 10 {
		style = style.Width(width - 6)
	}
	return style.Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}

// emptyMessage is shown for a list tab whose search matched nothing.
func emptyMessage(tab chart.TabID) string {
	switch tab {
	case chart.TabLabs:
		return "No laboratory results found"
	case chart.TabVitals:
		return "No vital signs found"
	case chart.TabMedications:
		return "No medications found"
	}
	return "No data"
}
