package parsers

import (
	"encoding/csv"
	"io"
	"os"
	"strings"

	"gst-reconciliation-service/internal/models"
	"gst-reconciliation-service/pkg/errors"
	"gst-reconciliation-service/pkg/logger"
)

// SpreadsheetConfig controls CSV normalization.
type SpreadsheetConfig struct {
	// Aliases overrides the column resolution table. Nil means
	// DefaultColumnAliases.
	Aliases ColumnAliases

	// Source tags every produced record (PORTAL or BOOKS).
	Source models.Source

	// Delimiter defaults to comma.
	Delimiter rune
}

// DefaultSpreadsheetConfig returns a config for comma-separated
// registers tagged with the given source.
func DefaultSpreadsheetConfig(source models.Source) *SpreadsheetConfig {
	return &SpreadsheetConfig{
		Aliases:   DefaultColumnAliases(),
		Source:    source,
		Delimiter: ',',
	}
}

// Validate checks the configuration for usability.
func (c *SpreadsheetConfig) Validate() error {
	if c.Source != models.SourcePortal && c.Source != models.SourceBooks {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "source", string(c.Source), nil)
	}
	return nil
}

// SpreadsheetParser normalizes CSV purchase registers with
// uncontrolled headers into canonical records.
type SpreadsheetParser struct {
	config *SpreadsheetConfig
	log    logger.Logger
}

// NewSpreadsheetParser builds a parser or reports a configuration
// error.
func NewSpreadsheetParser(config *SpreadsheetConfig) (*SpreadsheetParser, error) {
	if config == nil {
		config = DefaultSpreadsheetConfig(models.SourceBooks)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if config.Aliases == nil {
		config.Aliases = DefaultColumnAliases()
	} else {
		// Copy the alias table so caller mutation after construction
		// cannot change column resolution mid-run.
		config.Aliases = config.Aliases.Clone()
	}
	if config.Delimiter == 0 {
		config.Delimiter = ','
	}
	return &SpreadsheetParser{
		config: config,
		log:    logger.WithComponent("spreadsheet_parser"),
	}, nil
}

// ParseFile opens and parses a CSV register.
func (p *SpreadsheetParser) ParseFile(path string) ([]*models.CanonicalRecord, *ParseStats, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, errors.FileError(errors.CodeFileNotFound, path, err)
		}
		if os.IsPermission(err) {
			return nil, nil, errors.FileError(errors.CodeFilePermission, path, err)
		}
		return nil, nil, errors.FileError(errors.CodeFileCorrupted, path, err)
	}
	defer f.Close()

	records, stats, err := p.Parse(f)
	if err != nil {
		return nil, nil, err
	}
	p.log.WithFields(logger.Fields{
		"file":    path,
		"rows":    stats.RowsRead,
		"records": stats.RecordsProduced,
		"skipped": stats.RowsSkipped,
	}).Info("Parsed spreadsheet register")
	return records, stats, nil
}

// Parse reads CSV rows and produces one canonical record per data row.
// A header-only or empty input yields an empty slice. Structural CSV
// errors fail the parse; field-level problems degrade to zero values.
func (p *SpreadsheetParser) Parse(r io.Reader) ([]*models.CanonicalRecord, *ParseStats, error) {
	reader := csv.NewReader(r)
	reader.Comma = p.config.Delimiter
	reader.TrimLeadingSpace = true
	// Registers exported by accounting packages often pad short rows.
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err == io.EOF {
		return []*models.CanonicalRecord{}, &ParseStats{}, nil
	}
	if err != nil {
		return nil, nil, errors.ParseError(errors.CodeInvalidFormat, "spreadsheet", 1, "", "", err)
	}

	indexes := columnIndexes(header, p.config.Aliases)
	p.logUnresolved(indexes)

	stats := &ParseStats{}
	records := []*models.CanonicalRecord{}
	line := 1
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, nil, errors.ParseError(errors.CodeInvalidFormat, "spreadsheet", line, "", "", err)
		}
		stats.RowsRead++
		if rowEmpty(row) {
			stats.RowsSkipped++
			continue
		}
		records = append(records, p.buildRecord(row, indexes))
		stats.RecordsProduced++
	}
	return records, stats, nil
}

func (p *SpreadsheetParser) buildRecord(row []string, indexes map[string]int) *models.CanonicalRecord {
	rec := models.NewCanonicalRecord(p.config.Source)
	rec.BusinessKey = models.NormalizeKey(cell(row, indexes[FieldGSTIN]))
	rec.DocumentKey = models.NormalizeKey(cell(row, indexes[FieldDocumentNumber]))
	rec.SupplierName = cell(row, indexes[FieldSupplierName])
	rec.DocumentDate = models.ParseDate(cell(row, indexes[FieldDocumentDate]))
	rec.GrossAmount = models.ParseAmount(cell(row, indexes[FieldGrossAmount]))
	rec.TaxableAmount = models.ParseAmount(cell(row, indexes[FieldTaxableAmount]))
	rec.Taxes.Set(models.ComponentIGST, models.ParseAmount(cell(row, indexes[FieldIGST])))
	rec.Taxes.Set(models.ComponentCGST, models.ParseAmount(cell(row, indexes[FieldCGST])))
	rec.Taxes.Set(models.ComponentSGST, models.ParseAmount(cell(row, indexes[FieldSGST])))
	rec.Taxes.Set(models.ComponentCess, models.ParseAmount(cell(row, indexes[FieldCess])))
	rec.Category = models.ParseCategory(cell(row, indexes[FieldDocumentType]))
	return rec
}

func (p *SpreadsheetParser) logUnresolved(indexes map[string]int) {
	for field, idx := range indexes {
		if idx < 0 {
			p.log.WithField("field", field).Debug("Column not found in header, defaulting to zero")
		}
	}
}

func rowEmpty(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
