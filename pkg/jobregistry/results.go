package jobregistry

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// Result file columns (0-indexed). Column 0 (query id) and columns 6-9
// (alignment coordinates) are not exposed.
const (
	colTarget      = 1
	colPIdentity   = 2
	colAlgnLength  = 3
	colMismatches  = 4
	colGapOpenings = 5
	colEValue      = 10
	colBitScore    = 11

	minResultColumns = 12
	maxResultLine    = 1 << 20
)

// ReadResultFile opens and parses a tab-separated search result file.
func ReadResultFile(path string) ([]ResultRow, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	return ParseResults(f, path)
}

// ParseResults parses tab-separated search output. Blank lines are skipped;
// any other malformed line fails the whole parse. name is used in errors.
func ParseResults(r io.Reader, name string) ([]ResultRow, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxResultLine)

	rows := make([]ResultRow, 0)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimRight(scanner.Text(), "\r")
		if strings.TrimSpace(text) == "" {
			continue
		}
		row, err := parseResultRow(strings.Split(text, "\t"))
		if err != nil {
			var pe *ResultParseError
			if errors.As(err, &pe) {
				pe.Path = name
				pe.Line = line
			}
			return nil, err
		}
		rows = append(rows, row)
	}
	if err := scanner.Err(); err != nil {
		return nil, &ResultParseError{Path: name, Line: line + 1, Column: -1, Err: err}
	}
	return rows, nil
}

func parseResultRow(fields []string) (ResultRow, error) {
	if len(fields) < minResultColumns {
		return ResultRow{}, &ResultParseError{
			Column: -1,
			Err:    fmt.Errorf("expected at least %d columns, got %d", minResultColumns, len(fields)),
		}
	}

	var (
		row ResultRow
		err error
	)
	row.Target = strings.TrimSpace(fields[colTarget])
	row.EValue = strings.TrimSpace(fields[colEValue])
	if row.PIdentity, err = parseFloat(fields, colPIdentity); err != nil {
		return ResultRow{}, err
	}
	if row.AlgnLength, err = parseInt(fields, colAlgnLength); err != nil {
		return ResultRow{}, err
	}
	if row.Mismatches, err = parseInt(fields, colMismatches); err != nil {
		return ResultRow{}, err
	}
	if row.GapOpenings, err = parseInt(fields, colGapOpenings); err != nil {
		return ResultRow{}, err
	}
	if row.BitScore, err = parseFloat(fields, colBitScore); err != nil {
		return ResultRow{}, err
	}
	return row, nil
}

func parseFloat(fields []string, col int) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(fields[col]), 64)
	if err != nil {
		return 0, &ResultParseError{Column: col, Err: err}
	}
	return v, nil
}

func parseInt(fields []string, col int) (int, error) {
	v, err := strconv.Atoi(strings.TrimSpace(fields[col]))
	if err != nil {
		return 0, &ResultParseError{Column: col, Err: err}
	}
	return v, nil
}
