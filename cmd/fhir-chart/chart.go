package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/brizzai/fhir-chart/internal/chart"
	"github.com/brizzai/fhir-chart/internal/fhir"
	"github.com/brizzai/fhir-chart/internal/requester"
	"github.com/brizzai/fhir-chart/internal/tui"
	"github.com/brizzai/fhir-chart/internal/utils"
	"github.com/spf13/cobra"
)

var chartCmd = &cobra.Command{
	Use:   "chart",
	Short: "Show the patient chart",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		loader, err := newLoader(cmd)
		if err != nil {
			return err
		}
		return tui.Run(cmd.Context(), loader)
	},
}

var fetchOutput string

var fetchCmd = &cobra.Command{
	Use:       "fetch <tab>",
	Short:     "Print the resources of one chart tab",
	Long:      "Print the resources of one chart tab. Tabs: " + strings.Join(tabNames(), ", "),
	Args:      cobra.ExactArgs(1),
	ValidArgs: tabNames(),
	RunE: func(cmd *cobra.Command, args []string) error {
		tab, ok := chart.ParseTabID(args[0])
		if !ok {
			return fmt.Errorf("unknown tab %q, expected one of %s", args[0], strings.Join(tabNames(), ", "))
		}

		loader, err := newLoader(cmd)
		if err != nil {
			return err
		}

		result := loader.Load(cmd.Context(), tab)
		if result.Err != nil {
			return result.Err
		}
		return utils.Encode(os.Stdout, fetchOutput, result.Output())
	},
}

func init() {
	fetchCmd.Flags().StringVarP(&fetchOutput, "output", "o", utils.FormatJSON, "Output format (json|yaml)")
}

// newLoader logs in when needed and returns a loader for the selected patient.
func newLoader(cmd *cobra.Command) (*chart.Loader, error) {
	if err := cfg.ValidateFHIR(); err != nil {
		return nil, err
	}

	token, err := obtainToken(cmd.Context(), cfg)
	if err != nil {
		return nil, err
	}
	patientID, err := patientFor(cfg, token)
	if err != nil {
		return nil, err
	}

	client := fhir.New(cfg.FHIR.BaseURL, token.AccessToken, fhir.WithHTTPClient(requester.NewHTTPClient(&cfg.FHIR)))
	return chart.NewLoader(client, patientID), nil
}

func tabNames() []string {
	names := make([]string, 0, len(chart.Tabs))
	for _, id := range chart.TabIDs() {
		names = append(names, id.String())
	}
	return names
}
