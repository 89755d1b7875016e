package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/brizzai/fhir-chart/internal/auth"
	"github.com/brizzai/fhir-chart/internal/config"
	"github.com/brizzai/fhir-chart/internal/logger"
	"github.com/brizzai/fhir-chart/internal/requester"
	"github.com/brizzai/fhir-chart/internal/utils"
	"github.com/pkg/browser"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var loginOutput string

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in with the SMART authorization code flow and print the token response",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.FHIR.AccessToken != "" {
			return errors.New("an access token is already configured, unset --access-token to log in")
		}

		token, err := obtainToken(cmd.Context(), cfg)
		if err != nil {
			return err
		}

		if err := utils.Encode(os.Stdout, loginOutput, token); err != nil {
			return err
		}

		printLaunchContext(token)
		if token.IDToken != "" {
			parser := auth.NewIdentityParser(cfg.SMART.Issuer, cfg.SMART.ClientID, requester.NewHTTPClient(&cfg.FHIR))
			identity, err := parser.ParseIdentity(cmd.Context(), token.IDToken)
			if err != nil {
				pterm.Warning.Printfln("Could not read identity: %v", err)
				return nil
			}
			printIdentity(identity)
		}
		return nil
	},
}

func init() {
	loginCmd.Flags().StringVarP(&loginOutput, "output", "o", utils.FormatJSON, "Output format (json|yaml)")
}

// obtainToken returns the configured access token, or runs the PKCE login.
func obtainToken(ctx context.Context, cfg *config.Config) (*auth.TokenResponse, error) {
	if cfg.FHIR.AccessToken != "" {
		logger.Debug("Using configured access token")
		return &auth.TokenResponse{AccessToken: cfg.FHIR.AccessToken, TokenType: "Bearer"}, nil
	}

	if err := cfg.ValidateSMART(); err != nil {
		return nil, err
	}

	httpClient := requester.NewHTTPClient(&cfg.FHIR)
	discovery := requester.NewHTTPRequester(requester.HTTPRequesterParams{
		Client:      httpClient,
		AuthManager: requester.NoAuth{},
	})
	if err := auth.ResolveEndpoints(ctx, &cfg.SMART, discovery, cfg.FHIR.BaseURL); err != nil {
		return nil, fmt.Errorf("failed to discover SMART endpoints: %w", err)
	}

	exchanger := auth.NewExchanger(&cfg.SMART, cfg.FHIR.BaseURL, auth.WithHTTPClient(httpClient))
	flow := auth.NewFlow(exchanger, auth.WithCallbackTimeout(cfg.SMART.CallbackTimeout))

	token, err := flow.Login(ctx, openBrowser)
	if err != nil {
		logger.Error("Login failed", zap.Stringer("state", flow.State()), zap.Error(err))
		return nil, err
	}
	pterm.Success.Println("Login complete")
	return token, nil
}

func openBrowser(url string) error {
	pterm.Info.Println("Opening the browser to log in. If it does not open, visit:")
	pterm.Println(url)
	if err := browser.OpenURL(url); err != nil {
		logger.Warn("Failed to open browser", zap.Error(err))
	}
	return nil
}

func printLaunchContext(token *auth.TokenResponse) {
	if token.Patient != "" {
		pterm.Info.Printfln("Launch patient: %s", pterm.LightGreen(token.Patient))
	}
	if token.Encounter != "" {
		pterm.Info.Printfln("Launch encounter: %s", token.Encounter)
	}
}

func printIdentity(id *auth.Identity) {
	name := id.Name
	if name == "" {
		name = id.Subject
	}
	verified := "unverified"
	if id.Verified {
		verified = "verified"
	}
	pterm.Info.Printfln("Logged in as %s (%s)", pterm.LightGreen(name), verified)
	if id.FHIRUser != "" {
		pterm.Info.Printfln("FHIR user: %s", id.FHIRUser)
	}
}

// patientFor picks the configured patient, falling back to the launch context.
func patientFor(cfg *config.Config, token *auth.TokenResponse) (string, error) {
	if cfg.FHIR.PatientID != "" {
		return cfg.FHIR.PatientID, nil
	}
	if token.Patient != "" {
		return token.Patient, nil
	}
	return "", errors.New("no patient selected, pass --patient or grant a launch/patient scope")
}
