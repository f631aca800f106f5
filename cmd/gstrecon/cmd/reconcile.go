package cmd

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gst-reconciliation-service/cmd/gstrecon/config"
	"gst-reconciliation-service/internal/models"
	"gst-reconciliation-service/internal/parsers"
	"gst-reconciliation-service/internal/portal"
	"gst-reconciliation-service/internal/reconciler"
	"gst-reconciliation-service/internal/reporter"
	"gst-reconciliation-service/pkg/errors"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Flags for the reconcile command
var (
	leftFile       string
	rightFile      string
	reconGSTIN     string
	reconUsername  string
	tolerance      float64
	fiscalYear     int
	periodMonth    int
	periodQuarter  string
	outputFormat   string
	outputFile     string
	includeMatched bool
	allowGaps      bool
	returnType     string
	returnSection  string
	fetchWorkers   int
)

// reconcileCmd represents the reconcile command
var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Reconcile portal return data with a bookkeeping register",
	Long: `Reconcile compares GST portal return documents with a purchase or
sales register to identify matched documents, value differences,
renumbered documents and entries present on only one side.

The portal side comes from either a local file (--left-file: a saved
portal JSON payload or a CSV export) or a live portal fetch
(--gstin and --username, which starts an OTP exchange). The register
side is always a local CSV file (--right-file).

Examples:
  # Reconcile a saved GSTR-2B payload against the purchase register
  gstrecon reconcile --left-file gstr2b.json --right-file purchases.csv --fy 2024 --quarter Q1

  # CSV exports on both sides with a wider tolerance
  gstrecon reconcile --left-file portal.csv --right-file books.csv --tolerance 5

  # Fetch the portal side live, tolerate unavailable months
  gstrecon reconcile --gstin 27AAACB2894G1ZK --username taxpayer1 \
    --right-file purchases.csv --fy 2024 --allow-gaps

  # Machine-readable output
  gstrecon reconcile --left-file gstr2b.json --right-file purchases.csv \
    --fy 2024 --month 4 --output-format json --output-file report.json`,

	PreRunE: validateReconcileFlags,
	RunE:    runReconcile,
}

func init() {
	rootCmd.AddCommand(reconcileCmd)

	// Input flags
	reconcileCmd.Flags().StringVarP(&leftFile, "left-file", "l", "", "portal-side file: .json portal payload or CSV export")
	reconcileCmd.Flags().StringVarP(&rightFile, "right-file", "r", "", "register-side CSV file (required)")
	reconcileCmd.Flags().StringVar(&reconGSTIN, "gstin", "", "taxpayer GSTIN for a live portal fetch")
	reconcileCmd.Flags().StringVar(&reconUsername, "username", "", "portal username for a live portal fetch")

	// Period flags
	reconcileCmd.Flags().IntVar(&fiscalYear, "fy", 0, "fiscal year start, e.g. 2024 for FY 2024-25")
	reconcileCmd.Flags().IntVar(&periodMonth, "month", 0, "calendar month 1-12 (needs --fy)")
	reconcileCmd.Flags().StringVar(&periodQuarter, "quarter", "", "fiscal quarter Q1-Q4 (needs --fy)")

	// Matching flags
	reconcileCmd.Flags().Float64VarP(&tolerance, "tolerance", "t", 1.0, "rupee tolerance for amount comparisons")

	// Output flags
	reconcileCmd.Flags().StringVarP(&outputFormat, "output-format", "f", "console", "output format: console, json, csv")
	reconcileCmd.Flags().StringVarP(&outputFile, "output-file", "o", "", "output file path (default: stdout)")
	reconcileCmd.Flags().BoolVar(&includeMatched, "include-matched", false, "list matched pairs in console output")

	// Portal fetch flags
	reconcileCmd.Flags().StringVar(&returnType, "return-type", "gstr-2b", "portal return to fetch: gstr-2b, gstr-1")
	reconcileCmd.Flags().StringVar(&returnSection, "section", "", "GSTR-1 section to fetch (optional)")
	reconcileCmd.Flags().BoolVar(&allowGaps, "allow-gaps", false, "record unavailable periods as gaps instead of aborting")
	reconcileCmd.Flags().IntVar(&fetchWorkers, "workers", 8, "concurrent portal fetches")
	reconcileCmd.Flags().String("api-key", "", "portal gateway API key (or GSTRECON_API_KEY)")
	reconcileCmd.Flags().String("api-secret", "", "portal gateway API secret (or GSTRECON_API_SECRET)")
	reconcileCmd.Flags().String("base-url", "", "portal gateway base URL (or GSTRECON_BASE_URL)")

	reconcileCmd.MarkFlagRequired("right-file")

	viper.BindPFlag("api-key", reconcileCmd.Flags().Lookup("api-key"))
	viper.BindPFlag("api-secret", reconcileCmd.Flags().Lookup("api-secret"))
	viper.BindPFlag("base-url", reconcileCmd.Flags().Lookup("base-url"))
}

func validateReconcileFlags(cmd *cobra.Command, args []string) error {
	if rightFile == "" {
		return fmt.Errorf("right-file is required")
	}
	if err := validateFileExists(rightFile, "register file"); err != nil {
		return err
	}

	portalMode := leftFile == ""
	if portalMode {
		if reconGSTIN == "" || reconUsername == "" {
			return fmt.Errorf("provide --left-file, or --gstin and --username for a live portal fetch")
		}
		if fiscalYear == 0 {
			return fmt.Errorf("a live portal fetch needs a period: set --fy (with optional --month or --quarter)")
		}
	} else {
		if err := validateFileExists(leftFile, "portal file"); err != nil {
			return err
		}
	}

	switch returnType {
	case "gstr-2b", "gstr-1":
	default:
		return fmt.Errorf("invalid return type %q. Valid types: gstr-2b, gstr-1", returnType)
	}

	validFormats := map[string]bool{"console": true, "json": true, "csv": true}
	if !validFormats[outputFormat] {
		return fmt.Errorf("invalid output format %q. Valid formats: console, json, csv", outputFormat)
	}

	if tolerance < 0 {
		return fmt.Errorf("tolerance cannot be negative")
	}

	if outputFile != "" {
		dir := filepath.Dir(outputFile)
		if dir != "." {
			if _, err := os.Stat(dir); os.IsNotExist(err) {
				return fmt.Errorf("output directory does not exist: %s", dir)
			}
		}
	}

	return nil
}

func validateFileExists(filePath, description string) error {
	if filePath == "" {
		return fmt.Errorf("%s path cannot be empty", description)
	}

	info, err := os.Stat(filePath)
	if os.IsNotExist(err) {
		return fmt.Errorf("%s does not exist: %s", description, filePath)
	}
	if err != nil {
		return fmt.Errorf("error accessing %s: %w", description, err)
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory, expected a file: %s", description, filePath)
	}

	return nil
}

func runReconcile(cmd *cobra.Command, args []string) (err error) {
	defer recoverToError("reconcile", &err)

	ctx := context.Background()

	spec, err := config.BuildPeriodSpec(config.PeriodFlags{
		FY:      fiscalYear,
		Month:   periodMonth,
		Quarter: periodQuarter,
	})
	if err != nil {
		return err
	}

	// Register side: always a CSV file.
	right, err := parseRegisterFile(rightFile)
	if err != nil {
		return err
	}

	// Portal side: local file or live fetch.
	var left []*models.CanonicalRecord
	var gaps []string
	if leftFile != "" {
		left, err = parsePortalFile(leftFile)
	} else {
		left, gaps, err = fetchPortalSide(ctx, spec)
	}
	if err != nil {
		return err
	}

	reconcilerConfig, err := config.BuildReconcilerConfig(tolerance, spec, gaps)
	if err != nil {
		return err
	}
	engine, err := reconciler.NewReconciler(reconcilerConfig)
	if err != nil {
		return err
	}

	report, err := engine.Reconcile(ctx, left, right)
	if err != nil {
		return err
	}

	reportConfig, err := config.BuildReportConfig(outputFormat, includeMatched)
	if err != nil {
		return err
	}
	generator, err := reporter.NewReportGenerator(reportConfig)
	if err != nil {
		return err
	}

	output := os.Stdout
	if outputFile != "" {
		output, err = os.Create(outputFile)
		if err != nil {
			return errors.FileError(errors.CodeFilePermission, outputFile, err)
		}
		defer output.Close()
	}

	if err := generator.GenerateReport(report, output); err != nil {
		return err
	}

	if viper.GetBool("verbose") {
		fmt.Fprintf(os.Stderr, "\nCompared %d portal records against %d register records.\n",
			report.Summary.Left.RecordCount, report.Summary.Right.RecordCount)
	}

	return nil
}

// parseRegisterFile reads the bookkeeping side.
func parseRegisterFile(path string) ([]*models.CanonicalRecord, error) {
	parser, err := parsers.NewSpreadsheetParser(parsers.DefaultSpreadsheetConfig(models.SourceBooks))
	if err != nil {
		return nil, err
	}
	records, _, err := parser.ParseFile(path)
	return records, err
}

// parsePortalFile reads a saved portal payload (.json) or a portal
// CSV export.
func parsePortalFile(path string) ([]*models.CanonicalRecord, error) {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		f, err := os.Open(path)
		if err != nil {
			return nil, errors.FileError(errors.CodeFileNotFound, path, err)
		}
		defer f.Close()
		return parsers.NewPortalParser().Parse(f, parserReturnType())
	}

	parser, err := parsers.NewSpreadsheetParser(parsers.DefaultSpreadsheetConfig(models.SourcePortal))
	if err != nil {
		return nil, err
	}
	records, _, err := parser.ParseFile(path)
	return records, err
}

// fetchPortalSide runs the OTP exchange and downloads every period in
// the selected range, then decodes the payloads.
func fetchPortalSide(ctx context.Context, spec *models.PeriodSpec) ([]*models.CanonicalRecord, []string, error) {
	periods, err := spec.Expand()
	if err != nil {
		return nil, nil, err
	}

	client, err := buildPortalClient()
	if err != nil {
		return nil, nil, err
	}

	session, err := establishSession(ctx, client, reconUsername, reconGSTIN)
	if err != nil {
		return nil, nil, err
	}

	fetcher := portal.NewFetcher(client, &portal.FetcherConfig{
		ReturnType: returnType,
		Section:    returnSection,
		Workers:    fetchWorkers,
		AllowGaps:  allowGaps,
	})
	payloads, gaps, err := fetcher.FetchPeriods(ctx, session.TaxpayerToken, session.GSTIN, periods)
	if err != nil {
		return nil, nil, err
	}

	parser := parsers.NewPortalParser()
	var records []*models.CanonicalRecord
	for _, payload := range payloads {
		periodRecords, err := parser.Parse(bytes.NewReader(payload.Body), parserReturnType())
		if err != nil {
			return nil, nil, errors.WrapIfNeeded(err, errors.CategoryParse, errors.CodeInvalidFormat,
				fmt.Sprintf("decoding %s payload for %s", returnType, payload.Period))
		}
		records = append(records, periodRecords...)
	}
	return records, gaps, nil
}

func buildPortalClient() (*portal.Client, error) {
	clientConfig, err := config.BuildClientConfig()
	if err != nil {
		return nil, err
	}
	return portal.NewClient(clientConfig,
		portal.NewTTLCache(portal.TokenCacheTTL),
		portal.NewTTLCache(portal.ResponseCacheTTL))
}

// establishSession runs the interactive OTP flow on stderr/stdin.
func establishSession(ctx context.Context, client *portal.Client, username, gstin string) (*portal.Session, error) {
	manager := portal.NewSessionManager(client)

	session, err := manager.RequestOTP(ctx, username, gstin)
	if err != nil {
		return nil, err
	}

	fmt.Fprintf(os.Stderr, "An OTP has been sent to the mobile number registered for %s.\n", session.GSTIN)
	fmt.Fprint(os.Stderr, "Enter OTP: ")
	reader := bufio.NewReader(os.Stdin)
	otp, err := reader.ReadString('\n')
	if err != nil {
		return nil, errors.AuthError(errors.CodeOTPRejected, "reading OTP from stdin", err)
	}

	session, err = manager.VerifyOTP(ctx, session.ID, strings.TrimSpace(otp))
	if err != nil {
		return nil, err
	}
	return manager.ValidSession(session.ID)
}

func parserReturnType() parsers.ReturnType {
	if returnType == "gstr-1" {
		return parsers.Return1
	}
	return parsers.Return2B
}
