// Package config turns CLI flags and environment settings into the
// typed configurations the components consume.
package config

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"gst-reconciliation-service/internal/models"
	"gst-reconciliation-service/internal/portal"
	"gst-reconciliation-service/internal/reconciler"
	"gst-reconciliation-service/internal/reporter"
	"gst-reconciliation-service/pkg/errors"
)

// PeriodFlags carries the raw period selection flags.
type PeriodFlags struct {
	// FY is the fiscal year start, e.g. 2024 for FY 2024-25.
	FY int
	// Month is a calendar month 1-12; selects a monthly run.
	Month int
	// Quarter is Q1-Q4 (April-aligned); selects a quarterly run.
	Quarter string
}

// BuildPeriodSpec converts the period flags into a spec. FY of zero
// means no period restriction and yields nil. A month wins over a
// quarter; with neither, the whole fiscal year is selected.
func BuildPeriodSpec(flags PeriodFlags) (*models.PeriodSpec, error) {
	if flags.FY == 0 {
		if flags.Month != 0 || flags.Quarter != "" {
			return nil, errors.ConfigurationError(errors.CodeMissingConfig, "fy",
				"month/quarter flags need --fy", nil)
		}
		return nil, nil
	}

	spec := &models.PeriodSpec{FYStartYear: flags.FY}
	switch {
	case flags.Month != 0:
		if flags.Month < 1 || flags.Month > 12 {
			return nil, errors.ConfigurationError(errors.CodeInvalidPeriod, "month", flags.Month, nil)
		}
		spec.Kind = models.PeriodMonthly
		spec.Month = time.Month(flags.Month)
	case flags.Quarter != "":
		spec.Kind = models.PeriodQuarterly
		spec.Quarter = strings.ToUpper(strings.TrimSpace(flags.Quarter))
	default:
		spec.Kind = models.PeriodFiscalYear
	}

	if err := spec.Validate(); err != nil {
		return nil, err
	}
	return spec, nil
}

// BuildReconcilerConfig assembles the engine configuration.
func BuildReconcilerConfig(tolerance float64, spec *models.PeriodSpec, gaps []string) (*reconciler.Config, error) {
	config := reconciler.DefaultConfig()
	config.Tolerance = decimal.NewFromFloat(tolerance)
	config.PeriodSpec = spec
	config.GapPeriods = gaps
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// BuildReportConfig assembles the reporter configuration.
func BuildReportConfig(format string, includeMatched bool) (*reporter.ReportConfig, error) {
	config := reporter.DefaultReportConfig()
	if format != "" {
		config.Format = reporter.OutputFormat(strings.ToLower(format))
	}
	config.IncludeMatched = includeMatched
	if err := config.Validate(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "output_format", format, err)
	}
	return config, nil
}

// BuildClientConfig reads the portal gateway settings. Flags override
// GSTRECON_API_KEY, GSTRECON_API_SECRET and GSTRECON_BASE_URL via the
// viper bindings set up by the commands.
func BuildClientConfig() (*portal.ClientConfig, error) {
	config := portal.DefaultClientConfig()
	if baseURL := viper.GetString("base-url"); baseURL != "" {
		config.BaseURL = strings.TrimRight(baseURL, "/")
	}
	config.APIKey = viper.GetString("api-key")
	config.APISecret = viper.GetString("api-secret")
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}
