// Package parsers normalizes the inbound data shapes (purchase
// register spreadsheets, portal return JSON, and pre-extracted PDF
// tables) into canonical records for reconciliation.
//
// All parsers follow the same recovery model: structural problems
// (unreadable file, malformed CSV, invalid JSON) fail fast with a
// typed parse error, while field-level problems (blank amount cell,
// unparsable date, missing column) degrade to the zero value so a
// single bad cell never sinks the run.
package parsers

import (
	"strings"
)

// Canonical field names used for column resolution and reporting.
const (
	FieldGSTIN          = "gstin"
	FieldDocumentNumber = "document_number"
	FieldDocumentDate   = "document_date"
	FieldSupplierName   = "supplier_name"
	FieldGrossAmount    = "gross_amount"
	FieldTaxableAmount  = "taxable_amount"
	FieldIGST           = "igst"
	FieldCGST           = "cgst"
	FieldSGST           = "sgst"
	FieldCess           = "cess"
	FieldDocumentType   = "document_type"
)

// ColumnAliases maps a canonical field to the header spellings seen in
// real purchase registers. Resolution tries an exact case-insensitive
// match across all aliases first and only then falls back to substring
// containment, so "Taxable Value" beats "Value" for the taxable field.
type ColumnAliases map[string][]string

// DefaultColumnAliases covers the header spellings of common
// accounting-package exports.
func DefaultColumnAliases() ColumnAliases {
	return ColumnAliases{
		FieldGSTIN:          {"gstin", "gstin/uin", "gstin of supplier", "supplier gstin"},
		FieldDocumentNumber: {"invoice", "invoice number", "invoice no", "inv no", "bill no", "document number", "voucher no"},
		FieldDocumentDate:   {"date", "invoice date", "inv date", "bill date", "document date", "voucher date"},
		FieldSupplierName:   {"supplier", "supplier name", "party", "party name", "name of supplier"},
		FieldGrossAmount:    {"gross amt", "gross amount", "invoice value", "total value", "total amount", "grand total"},
		FieldTaxableAmount:  {"taxable", "taxable value", "taxable amt", "taxable amount"},
		FieldIGST:           {"igst", "igst amount", "integrated tax"},
		FieldCGST:           {"cgst", "cgst amount", "central tax"},
		FieldSGST:           {"sgst", "sgst amount", "state tax", "sgst/utgst"},
		FieldCess:           {"cess", "cess amount"},
		FieldDocumentType:   {"type", "doc type", "document type", "nature", "voucher type"},
	}
}

// Clone returns an independent copy of the alias table.
func (a ColumnAliases) Clone() ColumnAliases {
	out := make(ColumnAliases, len(a))
	for field, aliases := range a {
		out[field] = append([]string(nil), aliases...)
	}
	return out
}

// resolveColumn returns the index of the header matching any alias, or
// -1 when no header matches. Exact case-insensitive matches across the
// whole alias list win over substring matches.
func resolveColumn(headers []string, aliases []string) int {
	normalized := make([]string, len(headers))
	for i, h := range headers {
		normalized[i] = strings.ToLower(strings.TrimSpace(h))
	}

	for _, alias := range aliases {
		want := strings.ToLower(strings.TrimSpace(alias))
		for i, h := range normalized {
			if h == want {
				return i
			}
		}
	}
	for _, alias := range aliases {
		want := strings.ToLower(strings.TrimSpace(alias))
		for i, h := range normalized {
			if strings.Contains(h, want) {
				return i
			}
		}
	}
	return -1
}

// columnIndexes resolves every canonical field against the header row.
// Fields with no matching header resolve to -1; callers substitute the
// zero value for those.
func columnIndexes(headers []string, aliases ColumnAliases) map[string]int {
	indexes := make(map[string]int, len(aliases))
	for field, names := range aliases {
		indexes[field] = resolveColumn(headers, names)
	}
	return indexes
}

// cell returns the trimmed value at idx, or "" when the column is
// unresolved or the row is short.
func cell(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

// ParseStats summarizes a parse pass for logging and reporting.
type ParseStats struct {
	RowsRead        int
	RecordsProduced int
	RowsSkipped     int
}
