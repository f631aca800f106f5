package cmd

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"

	"gst-reconciliation-service/cmd/gstrecon/config"
	"gst-reconciliation-service/internal/models"
	"gst-reconciliation-service/internal/parsers"
	"gst-reconciliation-service/internal/portal"
	"gst-reconciliation-service/pkg/errors"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	outputDir   string
	fetchFormat string
)

// fetchCmd downloads portal return payloads without reconciling them,
// so a quarter's data can be pulled once and reconciled offline.
var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Download portal return payloads for a period range",
	Long: `Fetch authenticates against the GST portal gateway, runs the OTP
exchange and downloads the selected return for every filing period in
the range. Each period is written to its own file in the output
directory, named <return-type>-<period>.<format>: either the raw JSON
payload, or the documents flattened to a CSV spreadsheet.

Examples:
  # One month of GSTR-2B as raw JSON
  gstrecon fetch --gstin 27AAACB2894G1ZK --username taxpayer1 --fy 2024 --month 4

  # A quarter of GSTR-2B flattened to spreadsheets
  gstrecon fetch --gstin 27AAACB2894G1ZK --username taxpayer1 \
    --fy 2024 --quarter Q2 --format csv

  # A full fiscal year of GSTR-1, tolerating unavailable months
  gstrecon fetch --gstin 27AAACB2894G1ZK --username taxpayer1 \
    --fy 2024 --return-type gstr-1 --allow-gaps --output-dir ./returns`,

	PreRunE: validateFetchFlags,
	RunE:    runFetch,
}

func init() {
	rootCmd.AddCommand(fetchCmd)

	fetchCmd.Flags().StringVar(&reconGSTIN, "gstin", "", "taxpayer GSTIN (required)")
	fetchCmd.Flags().StringVar(&reconUsername, "username", "", "portal username (required)")

	fetchCmd.Flags().IntVar(&fiscalYear, "fy", 0, "fiscal year start, e.g. 2024 for FY 2024-25 (required)")
	fetchCmd.Flags().IntVar(&periodMonth, "month", 0, "calendar month 1-12")
	fetchCmd.Flags().StringVar(&periodQuarter, "quarter", "", "fiscal quarter Q1-Q4")

	fetchCmd.Flags().StringVar(&returnType, "return-type", "gstr-2b", "portal return to fetch: gstr-2b, gstr-1, gstr-3b")
	fetchCmd.Flags().StringVar(&returnSection, "section", "", "GSTR-1 section to fetch (optional)")
	fetchCmd.Flags().BoolVar(&allowGaps, "allow-gaps", false, "record unavailable periods as gaps instead of aborting")
	fetchCmd.Flags().IntVar(&fetchWorkers, "workers", 8, "concurrent portal fetches")
	fetchCmd.Flags().StringVarP(&outputDir, "output-dir", "o", ".", "directory for downloaded payloads")
	fetchCmd.Flags().StringVar(&fetchFormat, "format", "json", "output format: json (raw payload), csv (flattened documents)")

	fetchCmd.Flags().String("api-key", "", "portal gateway API key (or GSTRECON_API_KEY)")
	fetchCmd.Flags().String("api-secret", "", "portal gateway API secret (or GSTRECON_API_SECRET)")
	fetchCmd.Flags().String("base-url", "", "portal gateway base URL (or GSTRECON_BASE_URL)")

	fetchCmd.MarkFlagRequired("gstin")
	fetchCmd.MarkFlagRequired("username")
	fetchCmd.MarkFlagRequired("fy")

	viper.BindPFlag("api-key", fetchCmd.Flags().Lookup("api-key"))
	viper.BindPFlag("api-secret", fetchCmd.Flags().Lookup("api-secret"))
	viper.BindPFlag("base-url", fetchCmd.Flags().Lookup("base-url"))
}

func validateFetchFlags(cmd *cobra.Command, args []string) error {
	if reconGSTIN == "" || reconUsername == "" {
		return fmt.Errorf("gstin and username are required")
	}
	if fiscalYear == 0 {
		return fmt.Errorf("fy is required")
	}

	switch returnType {
	case "gstr-2b", "gstr-1", "gstr-3b":
	default:
		return fmt.Errorf("invalid return type %q. Valid types: gstr-2b, gstr-1, gstr-3b", returnType)
	}

	switch fetchFormat {
	case "json":
	case "csv":
		if returnType == "gstr-3b" {
			return fmt.Errorf("csv output is only available for gstr-2b and gstr-1")
		}
	default:
		return fmt.Errorf("invalid format %q. Valid formats: json, csv", fetchFormat)
	}

	info, err := os.Stat(outputDir)
	if os.IsNotExist(err) {
		return fmt.Errorf("output directory does not exist: %s", outputDir)
	}
	if err != nil {
		return fmt.Errorf("error accessing output directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("output path is not a directory: %s", outputDir)
	}

	return nil
}

func runFetch(cmd *cobra.Command, args []string) (err error) {
	defer recoverToError("fetch", &err)

	ctx := context.Background()

	spec, err := config.BuildPeriodSpec(config.PeriodFlags{
		FY:      fiscalYear,
		Month:   periodMonth,
		Quarter: periodQuarter,
	})
	if err != nil {
		return err
	}
	periods, err := spec.Expand()
	if err != nil {
		return err
	}

	client, err := buildPortalClient()
	if err != nil {
		return err
	}
	session, err := establishSession(ctx, client, reconUsername, reconGSTIN)
	if err != nil {
		return err
	}

	fetcher := portal.NewFetcher(client, &portal.FetcherConfig{
		ReturnType: returnType,
		Section:    returnSection,
		Workers:    fetchWorkers,
		AllowGaps:  allowGaps,
	})
	payloads, gaps, err := fetcher.FetchPeriods(ctx, session.TaxpayerToken, session.GSTIN, periods)
	if err != nil {
		return err
	}

	for _, payload := range payloads {
		path := filepath.Join(outputDir, fmt.Sprintf("%s-%s.%s", returnType, payload.Period, fetchFormat))
		if fetchFormat == "csv" {
			err = writeDocumentsCSV(path, payload.Body)
		} else {
			err = os.WriteFile(path, payload.Body, 0o644)
			if err != nil {
				err = errors.FileError(errors.CodeFilePermission, path, err)
			}
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "Wrote %s\n", path)
	}

	if len(gaps) > 0 {
		fmt.Fprintf(os.Stderr, "WARNING: %d period(s) could not be fetched: %v\n", len(gaps), gaps)
	}
	fmt.Fprintf(os.Stderr, "Downloaded %d of %d period(s).\n", len(payloads), len(periods))

	return nil
}

// writeDocumentsCSV flattens one period's payload into a register-style
// spreadsheet with the canonical columns.
func writeDocumentsCSV(path string, body []byte) error {
	records, err := parsers.NewPortalParser().Parse(bytes.NewReader(body), parserReturnType())
	if err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return errors.FileError(errors.CodeFilePermission, path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	header := []string{"GSTIN", "Supplier Name", "Document Number", "Document Date",
		"Document Type", "Taxable Value", "Invoice Value", "IGST", "CGST", "SGST", "Cess"}
	if err := w.Write(header); err != nil {
		return errors.FileError(errors.CodeFilePermission, path, err)
	}
	for _, rec := range records {
		date := ""
		if rec.DocumentDate != nil {
			date = rec.DocumentDate.Format("02-01-2006")
		}
		row := []string{
			rec.BusinessKey,
			rec.SupplierName,
			rec.DocumentKey,
			date,
			string(rec.Category),
			rec.TaxableAmount.StringFixed(2),
			rec.GrossAmount.StringFixed(2),
			rec.Taxes.Get(models.ComponentIGST).StringFixed(2),
			rec.Taxes.Get(models.ComponentCGST).StringFixed(2),
			rec.Taxes.Get(models.ComponentSGST).StringFixed(2),
			rec.Taxes.Get(models.ComponentCess).StringFixed(2),
		}
		if err := w.Write(row); err != nil {
			return errors.FileError(errors.CodeFilePermission, path, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return errors.FileError(errors.CodeFilePermission, path, err)
	}
	return nil
}
