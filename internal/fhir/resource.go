package fhir

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ResourceType is the FHIR "resourceType" discriminator.
type ResourceType string

const (
	ResourceTypePatient           ResourceType = "Patient"
	ResourceTypeObservation       ResourceType = "Observation"
	ResourceTypeMedicationRequest ResourceType = "MedicationRequest"
	ResourceTypeBundle            ResourceType = "Bundle"
	ResourceTypeOperationOutcome  ResourceType = "OperationOutcome"
)

// Resource is the closed set of resources the chart reads. Only types in
// this package implement it.
type Resource interface {
	Kind() ResourceType
	resource()
}

func (*Patient) Kind() ResourceType           { return ResourceTypePatient }
func (*Observation) Kind() ResourceType       { return ResourceTypeObservation }
func (*MedicationRequest) Kind() ResourceType { return ResourceTypeMedicationRequest }
func (*OperationOutcome) Kind() ResourceType  { return ResourceTypeOperationOutcome }
func (*Bundle[T]) Kind() ResourceType         { return ResourceTypeBundle }

func (*Patient) resource()           {}
func (*Observation) resource()       {}
func (*MedicationRequest) resource() {}
func (*OperationOutcome) resource()  {}
func (*Bundle[T]) resource()         {}

// rawHolder is implemented by resources that keep the body they were
// decoded from.
type rawHolder interface {
	setRaw(json.RawMessage)
}

func (p *Patient) setRaw(raw json.RawMessage)   { p.Raw = raw }
func (b *Bundle[T]) setRaw(raw json.RawMessage) { b.Raw = raw }

// OperationOutcomeIssue is a single problem reported by the server.
type OperationOutcomeIssue struct {
	Severity    string           `json:"severity"`
	Code        string           `json:"code"`
	Details     *CodeableConcept `json:"details,omitempty"`
	Diagnostics string           `json:"diagnostics,omitempty"`
}

// OperationOutcome is what FHIR servers return alongside error statuses.
type OperationOutcome struct {
	ResourceType ResourceType            `json:"resourceType"`
	Issue        []OperationOutcomeIssue `json:"issue,omitempty"`
}

func (o *OperationOutcome) String() string {
	msgs := make([]string, 0, len(o.Issue))
	for _, issue := range o.Issue {
		msg := issue.Diagnostics
		if msg == "" {
			msg = issue.Details.Display()
		}
		if msg == "" {
			msg = issue.Code
		}
		msgs = append(msgs, fmt.Sprintf("%s: %s", issue.Severity, msg))
	}
	return strings.Join(msgs, "; ")
}

// PeekResourceType reads only the discriminator of a JSON resource.
func PeekResourceType(data []byte) (ResourceType, error) {
	var head struct {
		ResourceType ResourceType `json:"resourceType"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return "", err
	}
	return head.ResourceType, nil
}

// DecodeResource decodes a single resource, choosing the concrete type from
// its resourceType.
func DecodeResource(data []byte) (Resource, error) {
	rt, err := PeekResourceType(data)
	if err != nil {
		return nil, err
	}

	var r Resource
	switch rt {
	case ResourceTypePatient:
		r = &Patient{}
	case ResourceTypeObservation:
		r = &Observation{}
	case ResourceTypeMedicationRequest:
		r = &MedicationRequest{}
	case ResourceTypeOperationOutcome:
		r = &OperationOutcome{}
	case "":
		return nil, fmt.Errorf("missing resourceType")
	default:
		return nil, fmt.Errorf("unsupported resourceType %q", rt)
	}

	if err := json.Unmarshal(data, r); err != nil {
		return nil, err
	}
	return r, nil
}
