package chart

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/brizzai/fhir-chart/internal/fhir"
	"github.com/brizzai/fhir-chart/internal/logger"
	"github.com/sourcegraph/conc"
	"go.uber.org/zap"
)

// Fetcher reads the resources behind each tab. *fhir.Client implements it.
type Fetcher interface {
	GetPatient(ctx context.Context, patientID string) (*fhir.Patient, error)
	GetLabResults(ctx context.Context, patientID string) (*fhir.Bundle[fhir.Observation], error)
	GetVitalSigns(ctx context.Context, patientID string) (*fhir.Bundle[fhir.Observation], error)
	GetMedications(ctx context.Context, patientID string) (*fhir.Bundle[fhir.MedicationRequest], error)
}

var _ Fetcher = (*fhir.Client)(nil)

// Result is the outcome of loading one tab. Exactly one of the payload
// fields is set when Err is nil.
type Result struct {
	Tab          TabID
	Patient      *fhir.Patient
	Observations []fhir.Observation
	Medications  []fhir.MedicationRequest
	// Total is the server reported match count of a search, if any.
	Total *int
	// Raw is the payload as the server sent it: the patient, or a JSON
	// array of the matched resources. It is nil when the fetcher kept no
	// response body.
	Raw json.RawMessage
	Err error
}

// Data returns the payload of the result.
func (r Result) Data() interface{} {
	switch r.Tab {
	case TabDemographics:
		return r.Patient
	case TabLabs, TabVitals:
		return r.Observations
	case TabMedications:
		return r.Medications
	}
	return nil
}

// Output returns Raw when set, else Data. Command and tool output use it so
// elements the typed payload does not model reach the caller.
func (r Result) Output() interface{} {
	if r.Raw != nil {
		return r.Raw
	}
	return r.Data()
}

// rawList joins resources into a JSON array, or nil when they are unknown.
func rawList(resources []json.RawMessage) json.RawMessage {
	if resources == nil {
		return nil
	}
	data, err := json.Marshal(resources)
	if err != nil {
		return nil
	}
	return data
}

// Loader loads tabs for one patient.
type Loader struct {
	fetcher   Fetcher
	patientID string
}

func NewLoader(fetcher Fetcher, patientID string) *Loader {
	return &Loader{fetcher: fetcher, patientID: patientID}
}

func (l *Loader) PatientID() string {
	return l.patientID
}

// Load fetches the resources of tab. Failures are reported in Result.Err.
func (l *Loader) Load(ctx context.Context, tab TabID) Result {
	r := Result{Tab: tab}

	switch tab {
	case TabDemographics:
		r.Patient, r.Err = l.fetcher.GetPatient(ctx, l.patientID)
		if r.Err == nil && r.Patient != nil {
			r.Raw = r.Patient.Raw
		}
	case TabLabs:
		bundle, err := l.fetcher.GetLabResults(ctx, l.patientID)
		r.Err = err
		if err == nil {
			r.Observations, r.Total = bundle.Resources(), bundle.Total
			r.Raw = rawList(bundle.RawResources())
		}
	case TabVitals:
		bundle, err := l.fetcher.GetVitalSigns(ctx, l.patientID)
		r.Err = err
		if err == nil {
			r.Observations, r.Total = bundle.Resources(), bundle.Total
			r.Raw = rawList(bundle.RawResources())
		}
	case TabMedications:
		bundle, err := l.fetcher.GetMedications(ctx, l.patientID)
		r.Err = err
		if err == nil {
			r.Medications, r.Total = bundle.Resources(), bundle.Total
			r.Raw = rawList(bundle.RawResources())
		}
	default:
		r.Err = fmt.Errorf("unknown tab %q", tab)
	}

	if r.Err != nil {
		logger.Warn("Failed to load tab", zap.Stringer("tab", tab), zap.Error(r.Err))
	}
	return r
}

// LoadAll loads every tab concurrently. A failing tab leaves the others intact.
func (l *Loader) LoadAll(ctx context.Context) *State {
	state := NewState()

	var (
		mu sync.Mutex
		wg conc.WaitGroup
	)
	for _, tab := range TabIDs() {
		state.Begin(tab)
		wg.Go(func() {
			r := l.Load(ctx, tab)
			mu.Lock()
			defer mu.Unlock()
			state.Apply(r)
		})
	}
	wg.Wait()

	return state
}

// TabState is the load status of one tab.
type TabState struct {
	Loading bool
	Loaded  bool
	Result  Result
}

// State is the chart application state keyed by tab. It is not safe for
// concurrent use.
type State struct {
	tabs map[TabID]*TabState
}

func NewState() *State {
	s := &State{tabs: make(map[TabID]*TabState, len(Tabs))}
	for _, id := range TabIDs() {
		s.tabs[id] = &TabState{Result: Result{Tab: id}}
	}
	return s
}

// Begin marks tab as loading. A previous result stays visible until Apply.
func (s *State) Begin(tab TabID) {
	if ts, ok := s.tabs[tab]; ok {
		ts.Loading = true
	}
}

// Apply records the result of a load started with Begin.
func (s *State) Apply(r Result) {
	ts, ok := s.tabs[r.Tab]
	if !ok {
		return
	}
	ts.Loading = false
	ts.Loaded = true
	ts.Result = r
}

// Tab returns a copy of the state of tab.
func (s *State) Tab(tab TabID) TabState {
	if ts, ok := s.tabs[tab]; ok {
		return *ts
	}
	return TabState{}
}

// Err returns the error of the last load of tab.
func (s *State) Err(tab TabID) error {
	return s.Tab(tab).Result.Err
}

// IsLoading reports whether any tab is loading.
func (s *State) IsLoading() bool {
	for _, ts := range s.tabs {
		if ts.Loading {
			return true
		}
	}
	return false
}
