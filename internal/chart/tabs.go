// Package chart holds the patient chart state: the closed set of tabs and
// the per-tab results loaded from the FHIR server.
package chart

// TabID identifies a chart tab.
type TabID string

const (
	TabDemographics TabID = "demographics"
	TabLabs         TabID = "labs"
	TabVitals       TabID = "vitals"
	TabMedications  TabID = "medications"
)

type Tab struct {
	ID          TabID
	Label       string
	Icon        string
	Description string
}

// Tabs lists every tab in display order.
var Tabs = []Tab{
	{ID: TabDemographics, Label: "Demographics", Icon: "👤", Description: "View patient demographics information"},
	{ID: TabLabs, Label: "Laboratory Results", Icon: "🧪", Description: "View laboratory test results"},
	{ID: TabVitals, Label: "Vital Signs", Icon: "❤", Description: "View patient vital signs"},
	{ID: TabMedications, Label: "Medications", Icon: "💊", Description: "View patient medications"},
}

// TabIDs returns the ids of Tabs in display order.
func TabIDs() []TabID {
	ids := make([]TabID, len(Tabs))
	for i, t := range Tabs {
		ids[i] = t.ID
	}
	return ids
}

// ParseTabID reports whether s names a tab.
func ParseTabID(s string) (TabID, bool) {
	for _, t := range Tabs {
		if string(t.ID) == s {
			return t.ID, true
		}
	}
	return "", false
}

// Tab returns the definition of id. Unknown ids yield a zero Tab.
func (id TabID) Tab() Tab {
	for _, t := range Tabs {
		if t.ID == id {
			return t
		}
	}
	return Tab{}
}

func (id TabID) String() string {
	return string(id)
}
