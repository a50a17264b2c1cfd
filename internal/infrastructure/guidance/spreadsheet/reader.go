// Package spreadsheet parses the two-column tabular guidance source. The
// source carries no header but the first row is always discarded; a row whose
// first column matches the jurisdiction holds the online portal link, and the
// row immediately after it holds the raw permitting steps.
package spreadsheet

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/heliowatt/permit-intake/internal/core/domain"
	"github.com/heliowatt/permit-intake/internal/core/ports"
)

type Reader struct{}

func NewReader() *Reader {
	return &Reader{}
}

// FindSteps locates the row pair for a jurisdiction. Matching is
// case-insensitive and whitespace-trimmed; the first matching row wins.
// A missing jurisdiction yields NotFound, not an error.
func (r *Reader) FindSteps(data []byte, format ports.SourceFormat, jurisdictionName string) (domain.GuidanceSteps, error) {
	rows, err := parseRows(data, format)
	if err != nil {
		return domain.GuidanceSteps{}, err
	}

	// Fixed skip-one-row convention carried over from the source sheet.
	if len(rows) > 0 {
		rows = rows[1:]
	}

	if maxColumns(rows) < 2 {
		return domain.GuidanceSteps{}, domain.WrapError(
			domain.ErrSourceSchema,
			"validate guidance source",
			errors.New("source must contain at least two columns: jurisdiction name and steps/link"),
		)
	}

	target := strings.ToLower(strings.TrimSpace(jurisdictionName))
	matched := -1
	for i, row := range rows {
		if strings.ToLower(strings.TrimSpace(cell(row, 0))) == target {
			matched = i
			break
		}
	}

	if matched < 0 {
		return domain.GuidanceSteps{
			JurisdictionName: jurisdictionName,
			NotFound:         true,
		}, nil
	}

	result := domain.GuidanceSteps{
		JurisdictionName: jurisdictionName,
		OnlineLink:       strings.TrimSpace(cell(rows[matched], 1)),
	}
	if matched+1 < len(rows) {
		result.OriginalSteps = strings.TrimSpace(cell(rows[matched+1], 1))
	}
	return result, nil
}

func parseRows(data []byte, format ports.SourceFormat) ([][]string, error) {
	switch format {
	case ports.FormatCSV:
		reader := csv.NewReader(bytes.NewReader(data))
		reader.FieldsPerRecord = -1
		var rows [][]string
		for {
			record, err := reader.Read()
			if errors.Is(err, io.EOF) {
				return rows, nil
			}
			if err != nil {
				return nil, domain.WrapError(domain.ErrSourceFormat, "parse csv source", err)
			}
			rows = append(rows, record)
		}
	case ports.FormatXLSX, ports.FormatXLS:
		book, err := excelize.OpenReader(bytes.NewReader(data))
		if err != nil {
			return nil, domain.WrapError(domain.ErrSourceFormat, fmt.Sprintf("parse %s source", format), err)
		}
		defer book.Close()

		sheets := book.GetSheetList()
		if len(sheets) == 0 {
			return nil, domain.WrapError(domain.ErrSourceFormat, "parse workbook", errors.New("workbook has no sheets"))
		}
		rows, err := book.GetRows(sheets[0])
		if err != nil {
			return nil, domain.WrapError(domain.ErrSourceFormat, "read workbook rows", err)
		}
		return rows, nil
	default:
		return nil, domain.WrapError(
			domain.ErrSourceFormat,
			"parse guidance source",
			fmt.Errorf("unsupported source format %q", format),
		)
	}
}

func maxColumns(rows [][]string) int {
	max := 0
	for _, row := range rows {
		if len(row) > max {
			max = len(row)
		}
	}
	return max
}

func cell(row []string, index int) string {
	if index >= len(row) {
		return ""
	}
	return row[index]
}
