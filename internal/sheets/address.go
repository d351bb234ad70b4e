// Package sheets implements the extraction core: cell-address math, schema
// inference from first-row cell metadata, raw-value coercion into typed
// record fields, and paginated range fetching.
//
// The package talks to the spreadsheet API only through the client.Client
// interface; everything here is deterministic given the fetched JSON.
package sheets

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// rangePattern is the full grammar for a configured data range.
// Row numbers are optional on either side; columns are 1-3 uppercase letters.
var rangePattern = regexp.MustCompile(`^([A-Z]{1,3})([0-9]*):([A-Z]{1,3})([0-9]*)$`)

// Range is a parsed "A1:C10"-style cell range.
//
// LastRow of 0 means the range is unbounded below and is resolved against
// the sheet's actual row count at sync start.
type Range struct {
	FirstColumn string
	LastColumn  string
	FirstRow    int
	LastRow     int
}

// ColumnCount returns the number of columns the range spans.
func (r Range) ColumnCount() int {
	first, _ := ColumnToIndex(r.FirstColumn)
	last, _ := ColumnToIndex(r.LastColumn)
	return last - first + 1
}

// String regenerates the range in A1 notation.
func (r Range) String() string {
	var b strings.Builder
	b.WriteString(r.FirstColumn)
	b.WriteString(strconv.Itoa(r.FirstRow))
	b.WriteString(":")
	b.WriteString(r.LastColumn)
	if r.LastRow > 0 {
		b.WriteString(strconv.Itoa(r.LastRow))
	}
	return b.String()
}

// ColumnToIndex converts a column letter code to its 1-based index.
// Accepts 1-3 uppercase letters (columns A through ZZZ).
func ColumnToIndex(letters string) (int, error) {
	if len(letters) < 1 || len(letters) > 3 {
		return 0, &AddressError{Input: letters, Reason: "column code must be 1-3 letters"}
	}
	index := 0
	for _, c := range letters {
		if c < 'A' || c > 'Z' {
			return 0, &AddressError{Input: letters, Reason: "column code must be uppercase A-Z"}
		}
		index = index*26 + int(c-'A') + 1
	}
	return index, nil
}

// IndexToColumn converts a 1-based column index to its letter code.
func IndexToColumn(index int) (string, error) {
	if index < 1 {
		return "", &AddressError{Input: strconv.Itoa(index), Reason: "column index must be >= 1"}
	}
	var letters []byte
	for index > 0 {
		index--
		letters = append([]byte{byte('A' + index%26)}, letters...)
		index /= 26
	}
	return string(letters), nil
}

// ParseRange parses an "A1:C10"-style range string.
//
// A missing row number on the left side defaults to row 1. A missing row
// number on the right side leaves LastRow at 0 (unbounded).
func ParseRange(s string) (Range, error) {
	m := rangePattern.FindStringSubmatch(s)
	if m == nil {
		return Range{}, &AddressError{Input: s, Reason: "must match [A-Z]{1,3}[0-9]*:[A-Z]{1,3}[0-9]*"}
	}

	r := Range{FirstColumn: m[1], LastColumn: m[3], FirstRow: 1}
	if m[2] != "" {
		row, err := strconv.Atoi(m[2])
		if err != nil || row < 1 {
			return Range{}, &AddressError{Input: s, Reason: fmt.Sprintf("bad first row %q", m[2])}
		}
		r.FirstRow = row
	}
	if m[4] != "" {
		row, err := strconv.Atoi(m[4])
		if err != nil || row < 1 {
			return Range{}, &AddressError{Input: s, Reason: fmt.Sprintf("bad last row %q", m[4])}
		}
		r.LastRow = row
	}

	firstCol, err := ColumnToIndex(r.FirstColumn)
	if err != nil {
		return Range{}, err
	}
	lastCol, err := ColumnToIndex(r.LastColumn)
	if err != nil {
		return Range{}, err
	}
	if lastCol < firstCol {
		return Range{}, &AddressError{Input: s, Reason: "last column is before first column"}
	}
	if r.LastRow > 0 && r.LastRow < r.FirstRow {
		return Range{}, &AddressError{Input: s, Reason: "last row is before first row"}
	}

	return r, nil
}
