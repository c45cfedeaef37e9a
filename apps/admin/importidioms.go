package main

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/xuri/excelize/v2"
	"go.uber.org/multierr"

	"github.com/kashur/backend/core/idiom"
)

const tagSeparator = ";"

// importIdioms creates an approved idiom per row of the first sheet of an xlsx file, or of a csv file.
// Columns: kashmiri, transliteration, translation, meaning, tags (separated by ";").
// A header row is skipped. Invalid rows are reported and skipped.
func (cli *commandLine) importIdioms(path string) error {
	var (
		rows [][]string
		err  error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		rows, err = readSheetRows(path)
	case ".csv":
		rows, err = readCSVRows(path)
	default:
		return errors.Errorf("%s: unsupported file type, expected .xlsx or .csv", path)
	}
	if err != nil {
		return err
	}

	// rows are reported by their line in the file
	firstLine := 1
	if len(rows) > 0 && len(rows[0]) > 0 && strings.EqualFold(strings.TrimSpace(rows[0][0]), "kashmiri") {
		rows = rows[1:]
		firstLine = 2
	}

	ctx := context.Background()
	var (
		imported int
		errs     error
	)
	for i, row := range rows {
		if isBlankRow(row) {
			continue
		}
		ni := rowToIdiom(row)
		if err = ni.Validate(cli.validate); err != nil {
			errs = multierr.Append(errs, errors.Wrapf(err, "row %d", firstLine+i))
			continue
		}
		if _, err = cli.idiomSvc.Create(ctx, ni); err != nil {
			return errors.Wrapf(err, "row %d: creating idiom", firstLine+i)
		}
		imported++
	}

	skipped := multierr.Errors(errs)
	for _, err := range skipped {
		fmt.Fprintf(cli.out, "skipped %v\n", err)
	}
	fmt.Fprintf(cli.out, "imported %d idioms, skipped %d rows\n", imported, len(skipped))
	return nil
}

func readSheetRows(path string) ([][]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "opening spreadsheet")
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, nil
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, errors.Wrap(err, "reading spreadsheet rows")
	}
	return rows, nil
}

func readCSVRows(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "opening csv")
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true
	rows, err := r.ReadAll()
	if err != nil {
		return nil, errors.Wrap(err, "reading csv")
	}
	return rows, nil
}

func isBlankRow(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

func rowToIdiom(row []string) idiom.NewIdiom {
	cell := func(i int) string {
		if i < len(row) {
			return row[i]
		}
		return ""
	}
	var tags []string
	if raw := cell(4); raw != "" {
		tags = strings.Split(raw, tagSeparator)
	}
	return idiom.NewIdiom{
		Kashmiri:        cell(0),
		Transliteration: cell(1),
		Translation:     cell(2),
		Meaning:         cell(3),
		Tags:            tags,
	}
}
