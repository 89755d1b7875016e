// Package tool provides the FHIR chart tools of the MCP server.
package tool

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/brizzai/fhir-chart/internal/chart"
	"github.com/brizzai/fhir-chart/internal/fhir"
	"github.com/brizzai/fhir-chart/internal/logger"
	"github.com/brizzai/fhir-chart/internal/utils"
	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"
)

// PatientIDArg is the argument every tool accepts.
const PatientIDArg = "patient_id"

// Names maps tool names to the tab they load.
var Names = map[string]chart.TabID{
	"get_patient":     chart.TabDemographics,
	"get_lab_results": chart.TabLabs,
	"get_vital_signs": chart.TabVitals,
	"get_medications": chart.TabMedications,
}

var descriptions = map[chart.TabID]string{
	chart.TabDemographics: "Read the Patient resource: names, birth date, gender and addresses.",
	chart.TabLabs:         "Search laboratory Observations for the patient, newest first, at most 100.",
	chart.TabVitals:       "Search vital sign Observations for the patient, ordered by code then newest first.",
	chart.TabMedications:  "Search MedicationRequests for the patient in server order.",
}

// Handler executes tool calls against the FHIR server.
type Handler struct {
	fetcher        chart.Fetcher
	defaultPatient string
}

// NewHandler creates a tool handler. defaultPatient is used when a call
// omits patient_id.
func NewHandler(fetcher chart.Fetcher, defaultPatient string) *Handler {
	return &Handler{fetcher: fetcher, defaultPatient: defaultPatient}
}

// Tools returns the server tools in tab order.
func (h *Handler) Tools() []mcpserver.ServerTool {
	tools := make([]mcpserver.ServerTool, 0, len(Names))
	for _, tab := range chart.TabIDs() {
		name := toolName(tab)
		patientDesc := "FHIR Patient id"
		if h.defaultPatient != "" {
			patientDesc += fmt.Sprintf(" (defaults to %s)", h.defaultPatient)
		}
		t := mcp.NewTool(name,
			mcp.WithDescription(descriptions[tab]),
			mcp.WithString(PatientIDArg, mcp.Description(patientDesc)),
		)
		tools = append(tools, mcpserver.ServerTool{Tool: t, Handler: h.CreateHandler(tab)})
	}
	return tools
}

// CreateHandler creates the handler function of the tool loading tab.
func (h *Handler) CreateHandler(tab chart.TabID) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		patientID := h.defaultPatient
		if v, ok := request.GetArguments()[PatientIDArg].(string); ok && v != "" {
			patientID = v
		}
		if patientID == "" {
			return mcp.NewToolResultError(PatientIDArg + " is required"), nil
		}

		logger.Debug("Tool call", zap.String("tool", request.Params.Name), zap.String("patient", patientID))

		result := chart.NewLoader(h.fetcher, patientID).Load(ctx, tab)
		if result.Err != nil {
			var reqErr *fhir.RequestError
			if errors.As(result.Err, &reqErr) {
				return mcp.NewToolResultError(reqErr.Error()), nil
			}
			return nil, fmt.Errorf("failed to load %s: %w", tab, result.Err)
		}

		var buf bytes.Buffer
		if err := utils.Encode(&buf, utils.FormatJSON, result.Output()); err != nil {
			return nil, fmt.Errorf("failed to encode %s: %w", tab, err)
		}
		return mcp.NewToolResultText(buf.String()), nil
	}
}

func toolName(tab chart.TabID) string {
	for name, t := range Names {
		if t == tab {
			return name
		}
	}
	return "get_" + string(tab)
}
