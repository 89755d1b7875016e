package main

import (
	"context"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	"github.com/brizzai/fhir-chart/internal/config"
	"github.com/brizzai/fhir-chart/internal/logger"
	"github.com/pkg/browser"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

func main() {
	Execute()
}

// cfg is loaded once the flags are parsed
var cfg *config.Config

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "fhir-chart",
	Short: "A SMART on FHIR patient chart for the terminal",
	Long: `fhir-chart logs in to a SMART on FHIR server with the authorization code flow and PKCE,
then shows the patient's demographics, laboratory results, vital signs and medications.
The same data can be printed as JSON or YAML or served to MCP clients as tools.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	defer func() {
		if r := recover(); r != nil {
			pterm.Error.Printf("\nCaught panic: %v\n", r)
			pterm.Error.Printf("%s\n", debug.Stack())
			os.Exit(2)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	_ = logger.Sync()
	if err != nil {
		pterm.Error.Println(err)
		os.Exit(1)
	}
}

func init() {
	config.InitFlags(rootCmd.PersistentFlags())
	rootCmd.PersistentFlags().BoolP("version", "v", false, "Show version information")

	rootCmd.AddCommand(loginCmd, chartCmd, fetchCmd, serveCmd)

	// Place version check in PreRun to ensure flags are parsed first
	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		versionFlag, _ := cmd.Flags().GetBool("version")
		if versionFlag {
			pterm.Info.Println(config.GetVersionInfo())
			os.Exit(0)
		}
		return setup(cmd)
	}

	// stdout is reserved for command output and the MCP stdio transport
	browser.Stdout = os.Stderr
	pterm.SetDefaultOutput(os.Stderr)
}

// setup loads the configuration and initializes the logger for cmd.
func setup(cmd *cobra.Command) error {
	loaded, err := config.Load(cmd.Flags())
	if err != nil {
		return err
	}

	// The TUI owns the terminal
	if cmd == chartCmd && loaded.Logging.OutputPath == "" {
		loaded.Logging.DisableConsole = true
	}
	if err := logger.InitLogger(&loaded.Logging); err != nil {
		return err
	}

	cfg = loaded
	return nil
}
