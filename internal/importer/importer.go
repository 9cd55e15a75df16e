// Package importer reads payment rows from CSV and XLSX sheets into raw
// payment records. It only reshapes cells; validation happens in the
// payment builder.
package importer

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"paytrack/internal/validation"

	"github.com/spf13/cast"
	"github.com/xuri/excelize/v2"
)

type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

var ErrUnsupportedFormat = errors.New("unsupported import format")

// maxEmptyRows consecutive blank rows end the sheet.
const maxEmptyRows = 10

// Row is one data row of the source. Line is the 1-based row number in the
// file, the header being line 1.
type Row struct {
	Line int
	Raw  validation.RawPayment
}

type Options struct {
	// Sheet selects the XLSX worksheet; the first sheet when empty.
	Sheet string
}

// DetectFormat picks the format from the file extension.
func DetectFormat(name string) (Format, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv":
		return FormatCSV, nil
	case ".xlsx":
		return FormatXLSX, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, filepath.Ext(name))
}

func ReadFile(path string, opts Options) ([]Row, error) {
	format, err := DetectFormat(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open import file: %w", err)
	}
	defer f.Close()

	return Read(f, format, opts)
}

func Read(r io.Reader, format Format, opts Options) ([]Row, error) {
	var (
		records [][]string
		err     error
	)
	switch format {
	case FormatCSV:
		records, err = readCSV(r)
	case FormatXLSX:
		records, err = readXLSX(r, opts.Sheet)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}

	header := make([]string, len(records[0]))
	for i, h := range records[0] {
		header[i] = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
	}

	var (
		rows  []Row
		empty int
	)
	for i, rec := range records[1:] {
		if isEmptyRow(rec) {
			empty++
			if empty >= maxEmptyRows {
				break
			}
			continue
		}
		empty = 0

		cells := make(map[string]string, len(header))
		for c, name := range header {
			if name == "" || c >= len(rec) {
				continue
			}
			cells[name] = strings.TrimSpace(rec[c])
		}
		rows = append(rows, Row{Line: i + 2, Raw: toRaw(cells)})
	}
	return rows, nil
}

func readCSV(r io.Reader) ([][]string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	return records, nil
}

func readXLSX(r io.Reader, sheet string) ([][]string, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open xlsx: %w", err)
	}
	defer f.Close()

	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, nil
		}
		sheet = sheets[0]
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheet, err)
	}
	return rows, nil
}

func toRaw(cells map[string]string) validation.RawPayment {
	return validation.RawPayment{
		TransactionID:        cells["transaction_id"],
		PayeeFirstName:       cells["payee_first_name"],
		PayeeLastName:        cells["payee_last_name"],
		PayeePaymentStatus:   cells["payee_payment_status"],
		PayeeAddedDateUTC:    addedDate(cells["payee_added_date_utc"]),
		PayeeDueDate:         cells["payee_due_date"],
		PayeeAddressLine1:    cells["payee_address_line_1"],
		PayeeAddressLine2:    optional(cells["payee_address_line_2"]),
		PayeeCity:            cells["payee_city"],
		PayeeCountry:         cells["payee_country"],
		PayeeProvinceOrState: optional(cells["payee_province_or_state"]),
		PayeePostalCode:      cells["payee_postal_code"],
		PayeePhoneNumber:     phone(cells["payee_phone_number"]),
		PayeeEmail:           cells["payee_email"],
		Currency:             cells["currency"],
		DiscountPercent:      cells["discount_percent"],
		TaxPercent:           cells["tax_percent"],
		DueAmount:            cells["due_amount"],
	}
}

// addedDate turns a Unix epoch cell into the human-readable UTC layout.
// Anything else is passed through for the builder to judge.
func addedDate(v string) any {
	if v == "" {
		return nil
	}
	if n, err := cast.ToInt64E(v); err == nil {
		return time.Unix(n, 0).UTC().Format(validation.HumanDateTimeLayout)
	}
	if f, err := cast.ToFloat64E(v); err == nil && f == math.Trunc(f) {
		return time.Unix(int64(f), 0).UTC().Format(validation.HumanDateTimeLayout)
	}
	return v
}

func phone(v string) string {
	if v != "" && !strings.HasPrefix(v, "+") {
		return "+" + v
	}
	return v
}

func optional(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}

func isEmptyRow(rec []string) bool {
	for _, c := range rec {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
