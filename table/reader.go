// Package table loads plain-text numeric tables: one sample per row,
// whitespace- or comma-separated values.
package table

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/transform"
)

// Options controls how a table file is read.
type Options struct {
	SkipHeader int  // leading non-blank lines dropped before parsing
	GBK        bool // decode the file from GBK (data exports with Chinese headers)
}

// Load reads the file at path as a numeric table. Blank lines are
// skipped, every data row must have the same number of values, and a
// file with one value per line loads as an Nx1 matrix.
func Load(path string, opts Options) ([][]float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var r io.Reader = f
	if opts.GBK {
		r = transform.NewReader(f, simplifiedchinese.GBK.NewDecoder())
	}
	return Parse(r, path, opts.SkipHeader)
}

// Parse reads a numeric table from r. The name is used in error messages.
func Parse(r io.Reader, name string, skipHeader int) ([][]float64, error) {
	scanner := bufio.NewScanner(r)

	var rows [][]float64
	width := -1
	lineNo := 0
	skipped := 0

	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if skipped < skipHeader {
			skipped++
			continue
		}

		fields := strings.FieldsFunc(line, isDelimiter)
		row := make([]float64, 0, len(fields))
		for _, field := range fields {
			value, err := strconv.ParseFloat(field, 64)
			if err != nil {
				return nil, fmt.Errorf("%s:%d: invalid numeric value %q", name, lineNo, field)
			}
			row = append(row, value)
		}
		if len(row) == 0 {
			continue
		}

		if width == -1 {
			width = len(row)
		} else if len(row) != width {
			return nil, fmt.Errorf("%s:%d: row has %d values, expected %d", name, lineNo, len(row), width)
		}
		rows = append(rows, row)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%s: no data rows", name)
	}
	return rows, nil
}

func isDelimiter(r rune) bool {
	return r == ',' || r == ' ' || r == '\t'
}
