package parsers

import (
	"encoding/json"
	"io"
	"sort"

	"github.com/shopspring/decimal"

	"gst-reconciliation-service/internal/models"
	"gst-reconciliation-service/pkg/errors"
	"gst-reconciliation-service/pkg/logger"
)

// ReturnType selects the portal payload shape to decode.
type ReturnType string

const (
	// Return2B is the auto-drafted inward supply statement; documents
	// live under docdata with tax amounts at invoice level.
	Return2B ReturnType = "GSTR2B"
	// Return1 is the outward supply return; tax amounts live one level
	// down, inside itms[0].itm_det.
	Return1 ReturnType = "GSTR1"
)

// PortalParser normalizes portal return JSON into canonical records.
//
// The portal wraps responses in one or more nested "data" envelopes
// depending on which gateway relayed them, and serializes sections
// either as arrays or as keyed objects. The parser accepts all of
// these shapes.
type PortalParser struct {
	log logger.Logger
}

// NewPortalParser builds a portal payload parser.
func NewPortalParser() *PortalParser {
	return &PortalParser{log: logger.WithComponent("portal_parser")}
}

// Parse decodes a portal payload of the given return type. Invalid
// JSON fails the parse; an envelope with no recognizable sections
// yields an empty slice.
func (p *PortalParser) Parse(r io.Reader, returnType ReturnType) ([]*models.CanonicalRecord, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	var payload map[string]interface{}
	if err := dec.Decode(&payload); err != nil {
		return nil, errors.ParseError(errors.CodeInvalidFormat, "portal payload", 0, "", "", err)
	}

	body := unwrapEnvelope(payload)

	var records []*models.CanonicalRecord
	switch returnType {
	case Return2B:
		records = p.parse2B(body)
	case Return1:
		records = p.parseReturn1(body)
	default:
		return nil, errors.ParseError(errors.CodeUnsupportedFormat, string(returnType), 0, "", "", nil)
	}

	p.log.WithFields(logger.Fields{
		"return_type": string(returnType),
		"records":     len(records),
	}).Debug("Parsed portal payload")
	return records, nil
}

// unwrapEnvelope strips the repeated "data" wrappers down to the
// innermost object.
func unwrapEnvelope(payload map[string]interface{}) map[string]interface{} {
	for {
		inner, ok := payload["data"].(map[string]interface{})
		if !ok {
			return payload
		}
		payload = inner
	}
}

// parse2B walks docdata sections b2b, b2ba, cdnr and cdnra. Amended
// sections feed the same buckets as their originals; credit/debit
// notes are tagged as adjustments.
func (p *PortalParser) parse2B(body map[string]interface{}) []*models.CanonicalRecord {
	records := []*models.CanonicalRecord{}
	docdata, ok := body["docdata"].(map[string]interface{})
	if !ok {
		p.log.Warn("Portal payload has no docdata section")
		return records
	}

	invoiceSections := []string{"b2b", "b2ba"}
	noteSections := []string{"cdnr", "cdnra"}

	for _, section := range invoiceSections {
		for _, supplier := range sectionEntries(docdata[section]) {
			ctin := stringField(supplier, "ctin")
			trdnm := stringField(supplier, "trdnm")
			for _, inv := range sectionEntries(supplier["inv"]) {
				records = append(records, p.statementRecord(inv, ctin, trdnm, "inum", models.CategoryStandard))
			}
		}
	}
	for _, section := range noteSections {
		for _, supplier := range sectionEntries(docdata[section]) {
			ctin := stringField(supplier, "ctin")
			trdnm := stringField(supplier, "trdnm")
			for _, note := range sectionEntries(supplier["nt"]) {
				records = append(records, p.statementRecord(note, ctin, trdnm, "ntnum", models.CategoryAdjustment))
			}
		}
	}
	return records
}

// statementRecord builds a record from a document whose tax amounts
// sit at document level (val, txval, igst, cgst, sgst, cess).
func (p *PortalParser) statementRecord(doc map[string]interface{}, ctin, trdnm, numberKey string, category models.DocumentCategory) *models.CanonicalRecord {
	number := stringField(doc, numberKey)
	if number == "" && numberKey == "ntnum" {
		// Older payloads spell the note number differently.
		number = stringField(doc, "nt_num")
	}

	rec := models.NewCanonicalRecord(models.SourcePortal)
	rec.BusinessKey = models.NormalizeKey(ctin)
	rec.DocumentKey = models.NormalizeKey(number)
	rec.SupplierName = trdnm
	rec.DocumentDate = models.ParseDate(stringField(doc, "dt"))
	rec.GrossAmount = numberField(doc, "val")
	rec.TaxableAmount = numberField(doc, "txval")
	rec.Taxes.Set(models.ComponentIGST, numberField(doc, "igst"))
	rec.Taxes.Set(models.ComponentCGST, numberField(doc, "cgst"))
	rec.Taxes.Set(models.ComponentSGST, numberField(doc, "sgst"))
	rec.Taxes.Set(models.ComponentCess, numberField(doc, "cess"))
	rec.Category = category
	return rec
}

// parseReturn1 walks the outward return sections. b2b invoices and
// cdnr notes carry their amounts in itms[0].itm_det; credit notes are
// negated so totals aggregate correctly. b2cl/b2cs rate rows, exports
// and nil-rated rows become keyless standard records that only
// participate in summary totals.
func (p *PortalParser) parseReturn1(body map[string]interface{}) []*models.CanonicalRecord {
	records := []*models.CanonicalRecord{}

	for _, supplier := range sectionEntries(body["b2b"]) {
		ctin := stringField(supplier, "ctin")
		for _, inv := range sectionEntries(supplier["inv"]) {
			rec := p.lineItemRecord(inv, ctin, "inum", "idt", false)
			rec.Category = models.CategoryStandard
			records = append(records, rec)
		}
	}

	for _, supplier := range sectionEntries(body["cdnr"]) {
		ctin := stringField(supplier, "ctin")
		for _, note := range sectionEntries(supplier["nt"]) {
			rec := p.lineItemRecord(note, ctin, "nt_num", "nt_dt", true)
			if rec.DocumentKey == "" {
				rec.DocumentKey = models.NormalizeKey(stringField(note, "ntnum"))
			}
			rec.Category = models.CategoryAdjustment
			records = append(records, rec)
		}
	}

	for _, section := range []string{"b2cl", "b2cs"} {
		for _, row := range sectionEntries(body[section]) {
			// Rate-wise consumer rows: no counterparty key, amounts at
			// row level.
			rec := models.NewCanonicalRecord(models.SourcePortal)
			rec.TaxableAmount = numberField(row, "txval")
			rec.Taxes.Set(models.ComponentIGST, numberField(row, "iamt"))
			rec.Taxes.Set(models.ComponentCGST, numberField(row, "camt"))
			rec.Taxes.Set(models.ComponentSGST, numberField(row, "samt"))
			rec.Taxes.Set(models.ComponentCess, numberField(row, "csamt"))
			rec.GrossAmount = rec.TaxableAmount.Add(rec.Taxes.Total())
			records = append(records, rec)
		}
	}

	for _, exporter := range sectionEntries(body["exp"]) {
		for _, inv := range sectionEntries(exporter["inv"]) {
			rec := models.NewCanonicalRecord(models.SourcePortal)
			rec.DocumentKey = models.NormalizeKey(stringField(inv, "inum"))
			rec.DocumentDate = models.ParseDate(stringField(inv, "idt"))
			rec.GrossAmount = numberField(inv, "val")
			// Export items omit the itm_det wrapper.
			for _, itm := range sectionEntries(inv["itms"]) {
				rec.TaxableAmount = rec.TaxableAmount.Add(numberField(itm, "txval"))
				rec.Taxes.Set(models.ComponentIGST, rec.Taxes.Get(models.ComponentIGST).Add(numberField(itm, "iamt")))
			}
			records = append(records, rec)
		}
	}

	if nilSection, ok := body["nil"].(map[string]interface{}); ok {
		for _, row := range sectionEntries(nilSection["inv"]) {
			rec := models.NewCanonicalRecord(models.SourcePortal)
			rec.TaxableAmount = numberField(row, "nil_amt").
				Add(numberField(row, "expt_amt")).
				Add(numberField(row, "ngsup_amt"))
			rec.GrossAmount = rec.TaxableAmount
			records = append(records, rec)
		}
	}

	return records
}

// lineItemRecord builds a record from a b2b invoice or cdnr note whose
// amounts live in itms[0].itm_det. negate flips all amounts, used for
// credit/debit notes.
func (p *PortalParser) lineItemRecord(doc map[string]interface{}, ctin, numberKey, dateKey string, negate bool) *models.CanonicalRecord {
	rec := models.NewCanonicalRecord(models.SourcePortal)
	rec.BusinessKey = models.NormalizeKey(ctin)
	rec.DocumentKey = models.NormalizeKey(stringField(doc, numberKey))
	rec.DocumentDate = models.ParseDate(stringField(doc, dateKey))
	rec.GrossAmount = numberField(doc, "val")

	items := sectionEntries(doc["itms"])
	if len(items) > 0 {
		if det, ok := items[0]["itm_det"].(map[string]interface{}); ok {
			rec.TaxableAmount = numberField(det, "txval")
			rec.Taxes.Set(models.ComponentIGST, numberField(det, "iamt"))
			rec.Taxes.Set(models.ComponentCGST, numberField(det, "camt"))
			rec.Taxes.Set(models.ComponentSGST, numberField(det, "samt"))
			rec.Taxes.Set(models.ComponentCess, numberField(det, "csamt"))
		}
	}

	if negate {
		rec.GrossAmount = rec.GrossAmount.Neg()
		rec.TaxableAmount = rec.TaxableAmount.Neg()
		for _, component := range []models.TaxComponent{
			models.ComponentIGST, models.ComponentCGST, models.ComponentSGST, models.ComponentCess,
		} {
			rec.Taxes.Set(component, rec.Taxes.Get(component).Neg())
		}
	}
	return rec
}

// sectionEntries accepts a section serialized as an array or as a
// keyed object and returns its entries as maps. Anything else yields
// nil.
func sectionEntries(section interface{}) []map[string]interface{} {
	switch v := section.(type) {
	case []interface{}:
		out := make([]map[string]interface{}, 0, len(v))
		for _, entry := range v {
			if m, ok := entry.(map[string]interface{}); ok {
				out = append(out, m)
			}
		}
		return out
	case map[string]interface{}:
		// Keyed objects iterate in sorted key order so repeated runs
		// over the same payload produce identical record order.
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := make([]map[string]interface{}, 0, len(v))
		for _, k := range keys {
			if m, ok := v[k].(map[string]interface{}); ok {
				out = append(out, m)
			}
		}
		return out
	default:
		return nil
	}
}

func stringField(m map[string]interface{}, key string) string {
	if s, ok := m[key].(string); ok {
		return s
	}
	return ""
}

// numberField reads a numeric field that may arrive as a JSON number
// or a quoted string; anything unreadable is zero.
func numberField(m map[string]interface{}, key string) decimal.Decimal {
	switch v := m[key].(type) {
	case json.Number:
		if d, err := decimal.NewFromString(v.String()); err == nil {
			return d
		}
	case string:
		return models.ParseAmount(v)
	case float64:
		return decimal.NewFromFloat(v)
	}
	return decimal.Zero
}
