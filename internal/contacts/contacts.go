// Package contacts inspects a contact spreadsheet before it is uploaded, so
// an obviously unusable file is rejected without a round trip.
package contacts

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/foxzi/bulkdash/internal/compliance"
)

// Required columns, matched after trimming and lowercasing
const (
	ColumnPhone = "phone"
	ColumnName  = "name"
)

var (
	ErrUnsupportedFile = errors.New("contact file must be an .xlsx spreadsheet")
	ErrNoSheets        = errors.New("contact file has no sheets")
	ErrNoContacts      = errors.New("no valid contacts found")
)

// MissingColumnsError lists required headers absent from the sheet
type MissingColumnsError struct {
	Columns []string
}

func (e *MissingColumnsError) Error() string {
	return "missing required columns: " + strings.Join(e.Columns, ", ")
}

// Report summarizes a contact sheet
type Report struct {
	Sheet    string
	Columns  []string
	Contacts int
	Skipped  int
	// Warnings are template placeholders with no matching column; they are
	// sent to recipients verbatim.
	Warnings []string
	// Preview is the template rendered for the first valid contact
	Preview string
}

var nonDigits = regexp.MustCompile(`\D`)

// NormalizePhone strips formatting and expands local numbers to the 254
// country code the backend assumes. ok is false for numbers the backend
// would skip.
func NormalizePhone(raw string) (string, bool) {
	phone := nonDigits.ReplaceAllString(raw, "")
	switch {
	case len(phone) == 9 && strings.HasPrefix(phone, "7"):
		phone = "254" + phone
	case len(phone) == 10 && strings.HasPrefix(phone, "07"):
		phone = "254" + phone[1:]
	}
	if len(phone) < 10 {
		return "", false
	}
	return phone, true
}

// Personalize replaces {column} placeholders with the contact's values
func Personalize(template string, contact map[string]string) string {
	pairs := make([]string, 0, len(contact)*2)
	for k, v := range contact {
		pairs = append(pairs, "{"+k+"}", v)
	}
	return strings.NewReplacer(pairs...).Replace(template)
}

// InspectFile opens and inspects an .xlsx file
func InspectFile(path, template string) (*Report, error) {
	if !strings.EqualFold(filepath.Ext(path), ".xlsx") {
		return nil, ErrUnsupportedFile
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open contact file: %w", err)
	}
	defer f.Close()
	return Inspect(f, template)
}

// Inspect reads the first sheet of a workbook and checks it against the
// template
func Inspect(r io.Reader, template string) (*Report, error) {
	xl, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("read spreadsheet: %w", err)
	}
	defer func() { _ = xl.Close() }()

	sheets := xl.GetSheetList()
	if len(sheets) == 0 {
		return nil, ErrNoSheets
	}
	sheet := sheets[0]

	rows, err := xl.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheet, err)
	}
	if len(rows) == 0 {
		return nil, &MissingColumnsError{Columns: []string{ColumnPhone, ColumnName}}
	}

	header := make([]string, len(rows[0]))
	for i, h := range rows[0] {
		header[i] = strings.ToLower(strings.TrimSpace(h))
	}

	var missing []string
	for _, col := range []string{ColumnPhone, ColumnName} {
		if !slices.Contains(header, col) {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, &MissingColumnsError{Columns: missing}
	}

	rep := &Report{Sheet: sheet, Columns: header}
	phoneIdx := slices.Index(header, ColumnPhone)

	for _, row := range rows[1:] {
		if isBlank(row) {
			continue
		}
		phone, ok := NormalizePhone(cell(row, phoneIdx))
		if !ok {
			rep.Skipped++
			continue
		}
		rep.Contacts++
		if rep.Contacts == 1 {
			contact := make(map[string]string, len(header))
			for i, col := range header {
				if col != "" {
					contact[col] = strings.TrimSpace(cell(row, i))
				}
			}
			contact[ColumnPhone] = phone
			rep.Preview = Personalize(compliance.Enforce(template), contact)
		}
	}
	if rep.Contacts == 0 {
		return nil, ErrNoContacts
	}

	for _, field := range compliance.Placeholders(template) {
		if !slices.Contains(header, field) {
			rep.Warnings = append(rep.Warnings, fmt.Sprintf("placeholder {%s} has no matching column", field))
		}
	}
	return rep, nil
}

func cell(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return row[i]
}

func isBlank(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
