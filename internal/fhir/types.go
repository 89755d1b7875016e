package fhir

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Observation category codes used by the chart.
const (
	CategoryLaboratory = "laboratory"
	CategoryVitalSigns = "vital-signs"
)

type Coding struct {
	System  string `json:"system,omitempty"`
	Code    string `json:"code,omitempty"`
	Display string `json:"display,omitempty"`
}

type CodeableConcept struct {
	Coding []Coding `json:"coding,omitempty"`
	Text   string   `json:"text,omitempty"`
}

// Display returns the text, falling back to the first coding display or code.
func (c *CodeableConcept) Display() string {
	if c == nil {
		return ""
	}
	if c.Text != "" {
		return c.Text
	}
	for _, coding := range c.Coding {
		if coding.Display != "" {
			return coding.Display
		}
	}
	for _, coding := range c.Coding {
		if coding.Code != "" {
			return coding.Code
		}
	}
	return ""
}

type Quantity struct {
	Value  float64 `json:"value"`
	Unit   string  `json:"unit,omitempty"`
	System string  `json:"system,omitempty"`
	Code   string  `json:"code,omitempty"`
}

func (q *Quantity) String() string {
	if q == nil {
		return ""
	}
	v := strconv.FormatFloat(q.Value, 'f', -1, 64)
	if q.Unit == "" {
		return v
	}
	return v + " " + q.Unit
}

type Reference struct {
	Reference string `json:"reference,omitempty"`
	Display   string `json:"display,omitempty"`
}

type HumanName struct {
	Use    string   `json:"use,omitempty"`
	Text   string   `json:"text,omitempty"`
	Family string   `json:"family,omitempty"`
	Given  []string `json:"given,omitempty"`
}

func (n HumanName) String() string {
	if n.Text != "" {
		return n.Text
	}
	parts := append([]string{}, n.Given...)
	if n.Family != "" {
		parts = append(parts, n.Family)
	}
	return strings.Join(parts, " ")
}

type Address struct {
	Use        string   `json:"use,omitempty"`
	Line       []string `json:"line,omitempty"`
	City       string   `json:"city,omitempty"`
	State      string   `json:"state,omitempty"`
	PostalCode string   `json:"postalCode,omitempty"`
	Country    string   `json:"country,omitempty"`
}

func (a Address) String() string {
	var parts []string
	if len(a.Line) > 0 {
		parts = append(parts, strings.Join(a.Line, ", "))
	}
	locality := strings.TrimSpace(strings.Join(nonEmpty(a.City, a.State, a.PostalCode), " "))
	if locality != "" {
		parts = append(parts, locality)
	}
	if a.Country != "" {
		parts = append(parts, a.Country)
	}
	return strings.Join(parts, ", ")
}

type Patient struct {
	ResourceType ResourceType `json:"resourceType"`
	ID           string       `json:"id,omitempty"`
	Name         []HumanName  `json:"name,omitempty"`
	BirthDate    string       `json:"birthDate,omitempty"`
	Gender       string       `json:"gender,omitempty"`
	Address      []Address    `json:"address,omitempty"`

	// Raw is the resource as the server sent it, including elements the
	// fields above do not model. It is nil for a Patient built in code.
	Raw json.RawMessage `json:"-"`
}

// DisplayName prefers the official name, then the first name on record.
func (p *Patient) DisplayName() string {
	for _, n := range p.Name {
		if n.Use == "official" {
			return n.String()
		}
	}
	if len(p.Name) > 0 {
		return p.Name[0].String()
	}
	return ""
}

type ReferenceRange struct {
	Low  *Quantity `json:"low,omitempty"`
	High *Quantity `json:"high,omitempty"`
	Text string    `json:"text,omitempty"`
}

func (r ReferenceRange) String() string {
	if r.Text != "" {
		return r.Text
	}
	switch {
	case r.Low != nil && r.High != nil:
		return fmt.Sprintf("%s - %s", r.Low, r.High)
	case r.Low != nil:
		return "> " + r.Low.String()
	case r.High != nil:
		return "< " + r.High.String()
	}
	return ""
}

type ObservationComponent struct {
	Code          CodeableConcept `json:"code"`
	ValueQuantity *Quantity       `json:"valueQuantity,omitempty"`
}

type Observation struct {
	ResourceType         ResourceType           `json:"resourceType"`
	ID                   string                 `json:"id,omitempty"`
	Status               string                 `json:"status,omitempty"`
	Category             []CodeableConcept      `json:"category,omitempty"`
	Code                 CodeableConcept        `json:"code"`
	Subject              *Reference             `json:"subject,omitempty"`
	EffectiveDateTime    string                 `json:"effectiveDateTime,omitempty"`
	ValueQuantity        *Quantity              `json:"valueQuantity,omitempty"`
	ValueCodeableConcept *CodeableConcept       `json:"valueCodeableConcept,omitempty"`
	ValueString          string                 `json:"valueString,omitempty"`
	Interpretation       []CodeableConcept      `json:"interpretation,omitempty"`
	ReferenceRange       []ReferenceRange       `json:"referenceRange,omitempty"`
	Component            []ObservationComponent `json:"component,omitempty"`
}

// Value renders whichever value[x] is present. Observations without a value
// but with components (blood pressure) render as "systolic/diastolic unit".
func (o *Observation) Value() string {
	switch {
	case o.ValueQuantity != nil:
		return o.ValueQuantity.String()
	case o.ValueCodeableConcept != nil:
		return o.ValueCodeableConcept.Display()
	case o.ValueString != "":
		return o.ValueString
	}

	var values []string
	unit := ""
	for _, c := range o.Component {
		if c.ValueQuantity == nil {
			continue
		}
		values = append(values, strconv.FormatFloat(c.ValueQuantity.Value, 'f', -1, 64))
		unit = c.ValueQuantity.Unit
	}
	if len(values) == 0 {
		return ""
	}
	return strings.TrimSpace(strings.Join(values, "/") + " " + unit)
}

type TimingRepeat struct {
	Frequency  int     `json:"frequency,omitempty"`
	Period     float64 `json:"period,omitempty"`
	PeriodUnit string  `json:"periodUnit,omitempty"`
}

type Timing struct {
	Repeat *TimingRepeat `json:"repeat,omitempty"`
}

type Dosage struct {
	Text   string  `json:"text,omitempty"`
	Timing *Timing `json:"timing,omitempty"`
}

// String returns the free text instruction or a rendering of the timing.
func (d Dosage) String() string {
	if d.Text != "" {
		return d.Text
	}
	if d.Timing == nil || d.Timing.Repeat == nil || d.Timing.Repeat.Frequency == 0 {
		return ""
	}
	r := d.Timing.Repeat
	period := strconv.FormatFloat(r.Period, 'f', -1, 64)
	if r.Period == 0 {
		period = "1"
	}
	return fmt.Sprintf("%d time(s) per %s %s", r.Frequency, period, r.PeriodUnit)
}

type MedicationRequest struct {
	ResourceType              ResourceType     `json:"resourceType"`
	ID                        string           `json:"id,omitempty"`
	Status                    string           `json:"status,omitempty"`
	Intent                    string           `json:"intent,omitempty"`
	MedicationCodeableConcept *CodeableConcept `json:"medicationCodeableConcept,omitempty"`
	Subject                   *Reference       `json:"subject,omitempty"`
	AuthoredOn                string           `json:"authoredOn,omitempty"`
	DosageInstruction         []Dosage         `json:"dosageInstruction,omitempty"`
}

type BundleLink struct {
	Relation string `json:"relation"`
	URL      string `json:"url"`
}

type BundleEntry[T any] struct {
	FullURL  string `json:"fullUrl,omitempty"`
	Resource T      `json:"resource"`
}

// Bundle is a searchset response. Entry is absent when nothing matched.
type Bundle[T any] struct {
	ResourceType ResourceType     `json:"resourceType"`
	Type         string           `json:"type,omitempty"`
	Total        *int             `json:"total,omitempty"`
	Link         []BundleLink     `json:"link,omitempty"`
	Entry        []BundleEntry[T] `json:"entry,omitempty"`

	// Raw is the bundle as the server sent it.
	Raw json.RawMessage `json:"-"`
}

// Resources returns the entry resources; an absent entry list is empty.
func (b *Bundle[T]) Resources() []T {
	if b == nil || len(b.Entry) == 0 {
		return []T{}
	}
	out := make([]T, 0, len(b.Entry))
	for _, e := range b.Entry {
		out = append(out, e.Resource)
	}
	return out
}

// RawResources returns the entry resources as the server sent them. It is
// nil for a bundle that was not read from a server.
func (b *Bundle[T]) RawResources() []json.RawMessage {
	if b == nil || b.Raw == nil {
		return nil
	}
	var body struct {
		Entry []struct {
			Resource json.RawMessage `json:"resource"`
		} `json:"entry"`
	}
	if err := json.Unmarshal(b.Raw, &body); err != nil {
		return nil
	}
	out := make([]json.RawMessage, 0, len(body.Entry))
	for _, e := range body.Entry {
		out = append(out, e.Resource)
	}
	return out
}

func nonEmpty(values ...string) []string {
	out := values[:0]
	for _, v := range values {
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}
