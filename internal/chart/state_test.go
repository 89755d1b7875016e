package chart

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/brizzai/fhir-chart/internal/fhir"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFetcher struct {
	patient     *fhir.Patient
	labs        *fhir.Bundle[fhir.Observation]
	vitals      *fhir.Bundle[fhir.Observation]
	medications *fhir.Bundle[fhir.MedicationRequest]
	failTab     TabID
	calls       atomic.Int32
	lastID      atomic.Value
}

var errBoom = &fhir.RequestError{StatusCode: 500, Message: "FHIR API error: 500"}

func (f *fakeFetcher) record(id string, tab TabID) error {
	f.calls.Add(1)
	f.lastID.Store(id)
	if f.failTab == tab {
		return errBoom
	}
	return nil
}

func (f *fakeFetcher) GetPatient(_ context.Context, id string) (*fhir.Patient, error) {
	if err := f.record(id, TabDemographics); err != nil {
		return nil, err
	}
	return f.patient, nil
}

func (f *fakeFetcher) GetLabResults(_ context.Context, id string) (*fhir.Bundle[fhir.Observation], error) {
	if err := f.record(id, TabLabs); err != nil {
		return nil, err
	}
	return f.labs, nil
}

func (f *fakeFetcher) GetVitalSigns(_ context.Context, id string) (*fhir.Bundle[fhir.Observation], error) {
	if err := f.record(id, TabVitals); err != nil {
		return nil, err
	}
	return f.vitals, nil
}

func (f *fakeFetcher) GetMedications(_ context.Context, id string) (*fhir.Bundle[fhir.MedicationRequest], error) {
	if err := f.record(id, TabMedications); err != nil {
		return nil, err
	}
	return f.medications, nil
}

func newFakeFetcher() *fakeFetcher {
	two := 2
	return &fakeFetcher{
		patient: &fhir.Patient{ResourceType: fhir.ResourceTypePatient, ID: "p1"},
		labs: &fhir.Bundle[fhir.Observation]{Total: &two, Entry: []fhir.BundleEntry[fhir.Observation]{
			{Resource: fhir.Observation{ID: "lab-1"}},
			{Resource: fhir.Observation{ID: "lab-2"}},
		}},
		vitals:      &fhir.Bundle[fhir.Observation]{},
		medications: &fhir.Bundle[fhir.MedicationRequest]{Entry: []fhir.BundleEntry[fhir.MedicationRequest]{{Resource: fhir.MedicationRequest{ID: "m1"}}}},
	}
}

func TestParseTabID(t *testing.T) {
	for _, tab := range Tabs {
		id, ok := ParseTabID(string(tab.ID))
		assert.True(t, ok)
		assert.Equal(t, tab.ID, id)
		assert.Equal(t, tab, id.Tab())
	}

	_, ok := ParseTabID("allergies")
	assert.False(t, ok)
	assert.Equal(t, Tab{}, TabID("allergies").Tab())
}

func TestTabIDs(t *testing.T) {
	assert.Equal(t, []TabID{TabDemographics, TabLabs, TabVitals, TabMedications}, TabIDs())
}

func TestLoad(t *testing.T) {
	f := newFakeFetcher()
	l := NewLoader(f, "p1")

	demo := l.Load(context.Background(), TabDemographics)
	require.NoError(t, demo.Err)
	assert.Equal(t, f.patient, demo.Data())

	labs := l.Load(context.Background(), TabLabs)
	require.NoError(t, labs.Err)
	require.NotNil(t, labs.Total)
	assert.Equal(t, 2, *labs.Total)
	if diff := cmp.Diff([]fhir.Observation{{ID: "lab-1"}, {ID: "lab-2"}}, labs.Data()); diff != "" {
		t.Errorf("labs mismatch (-want +got):\n%s", diff)
	}

	vitals := l.Load(context.Background(), TabVitals)
	require.NoError(t, vitals.Err)
	assert.Equal(t, []fhir.Observation{}, vitals.Data())

	meds := l.Load(context.Background(), TabMedications)
	require.NoError(t, meds.Err)
	assert.Equal(t, []fhir.MedicationRequest{{ID: "m1"}}, meds.Data())

	assert.Equal(t, "p1", f.lastID.Load())
	assert.Equal(t, "p1", l.PatientID())
}

func TestLoad_OutputKeepsServerBody(t *testing.T) {
	f := newFakeFetcher()
	f.patient.Raw = json.RawMessage(`{"resourceType":"Patient","id":"p1","maritalStatus":{"text":"Married"}}`)
	f.medications.Raw = json.RawMessage(`{"resourceType":"Bundle","entry":[{"resource":{"resourceType":"MedicationRequest","id":"m1","note":[{"text":"with food"}]}}]}`)
	l := NewLoader(f, "p1")

	demo := l.Load(context.Background(), TabDemographics)
	require.NoError(t, demo.Err)
	out, err := json.Marshal(demo.Output())
	require.NoError(t, err)
	assert.JSONEq(t, string(f.patient.Raw), string(out))

	meds := l.Load(context.Background(), TabMedications)
	require.NoError(t, meds.Err)
	out, err = json.Marshal(meds.Output())
	require.NoError(t, err)
	assert.JSONEq(t, `[{"resourceType":"MedicationRequest","id":"m1","note":[{"text":"with food"}]}]`, string(out))

	// no body kept, so the typed payload is used
	labs := l.Load(context.Background(), TabLabs)
	require.NoError(t, labs.Err)
	assert.Nil(t, labs.Raw)
	assert.Equal(t, labs.Data(), labs.Output())
}

func TestLoad_Error(t *testing.T) {
	f := newFakeFetcher()
	f.failTab = TabLabs

	r := NewLoader(f, "p1").Load(context.Background(), TabLabs)
	var reqErr *fhir.RequestError
	require.True(t, errors.As(r.Err, &reqErr))
	assert.Equal(t, 500, reqErr.StatusCode)
	assert.Nil(t, r.Observations)
}

func TestLoad_UnknownTab(t *testing.T) {
	r := NewLoader(newFakeFetcher(), "p1").Load(context.Background(), TabID("allergies"))
	assert.ErrorContains(t, r.Err, `unknown tab "allergies"`)
	assert.Nil(t, r.Data())
}

func TestLoadAll_IsolatesFailures(t *testing.T) {
	f := newFakeFetcher()
	f.failTab = TabVitals

	state := NewLoader(f, "p1").LoadAll(context.Background())

	assert.EqualValues(t, 4, f.calls.Load())
	assert.False(t, state.IsLoading())
	for _, id := range TabIDs() {
		ts := state.Tab(id)
		assert.True(t, ts.Loaded, id)
		if id == TabVitals {
			assert.ErrorIs(t, state.Err(id), errBoom)
			continue
		}
		assert.NoError(t, state.Err(id), id)
	}
	assert.Equal(t, "p1", state.Tab(TabDemographics).Result.Patient.ID)
}

func TestState(t *testing.T) {
	s := NewState()
	assert.False(t, s.IsLoading())
	assert.False(t, s.Tab(TabLabs).Loaded)

	s.Begin(TabLabs)
	assert.True(t, s.IsLoading())
	assert.True(t, s.Tab(TabLabs).Loading)

	s.Apply(Result{Tab: TabLabs, Observations: []fhir.Observation{{ID: "o"}}})
	assert.False(t, s.IsLoading())
	assert.True(t, s.Tab(TabLabs).Loaded)

	// reload keeps the previous result until the new one arrives
	s.Begin(TabLabs)
	assert.Len(t, s.Tab(TabLabs).Result.Observations, 1)

	s.Apply(Result{Tab: TabLabs, Err: errBoom})
	assert.ErrorIs(t, s.Err(TabLabs), errBoom)

	s.Begin("unknown")
	s.Apply(Result{Tab: "unknown"})
	assert.False(t, s.IsLoading())
	assert.Equal(t, TabState{}, s.Tab("unknown"))
}
