package core

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"

	"github.com/JonMunkholm/sage/internal/dataset"
	"github.com/JonMunkholm/sage/internal/schema"
)

var supportedExtensions = map[string]schema.FileType{
	".csv":  schema.FileCSV,
	".xlsx": schema.FileExcel,
	".xls":  schema.FileExcel,
	".zip":  schema.FileZIP,
}

// DetectFileType maps a file extension, case-insensitively, to a file type.
func DetectFileType(path string) (schema.FileType, error) {
	ext := strings.ToLower(filepath.Ext(path))
	ft, ok := supportedExtensions[ext]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedExtension, ext)
	}
	return ft, nil
}

// readTable parses a CSV or Excel file into a table with raw cells. It
// returns the number of bytes read from disk.
func readTable(path string, cat *schema.Catalog) (*dataset.Table, int64, error) {
	ft, err := DetectFileType(path)
	if err != nil {
		return nil, 0, err
	}
	if ft != cat.FileFormat.Type {
		return nil, 0, fmt.Errorf("%w: file is %s, catalog %s expects %s",
			ErrFormatMismatch, ft, cat.Name, cat.FileFormat.Type)
	}

	switch ft {
	case schema.FileCSV:
		return readCSV(path, cat.FileFormat)
	case schema.FileExcel:
		return readExcel(path, cat.FileFormat.Header)
	default:
		return nil, 0, fmt.Errorf("%w: %s", ErrFormatMismatch, ft)
	}
}

// readCSV decodes the file as UTF-8, dropping a leading BOM. Files that are
// not valid UTF-8 are read again as Latin-1, which accepts any byte.
func readCSV(path string, format schema.FileFormat) (*dataset.Table, int64, error) {
	bom, err := HasBOM(path)
	if err != nil {
		return nil, 0, err
	}

	t, n, err := decodeCSV(path, format, func(r io.Reader) io.Reader {
		if bom {
			r = NewBOMSkippingReader(r)
		}
		return NewUTF8Validator(r)
	})
	if errors.Is(err, ErrInvalidUTF8) {
		t, n, err = decodeCSV(path, format, func(r io.Reader) io.Reader {
			return transform.NewReader(r, charmap.ISO8859_1.NewDecoder())
		})
	}
	if err != nil {
		return nil, n, err
	}
	return t, n, nil
}

func decodeCSV(path string, format schema.FileFormat, wrap func(io.Reader) io.Reader) (*dataset.Table, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer f.Close()

	counter := NewCountingReader(f)
	cr := csv.NewReader(wrap(counter))
	cr.Comma = format.Comma()
	cr.LazyQuotes = true
	cr.FieldsPerRecord = -1

	var rows [][]string
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, counter.BytesRead, err
		}
		rows = append(rows, rec)
	}

	t, err := buildTable(rows, format.Header, false)
	return t, counter.BytesRead, err
}

// buildTable turns raw rows into a table. Without a header, columns are
// named COLUMN_1..COLUMN_n after the width of the first row. Short rows are
// padded with empty cells; longer rows are an error unless widen is set,
// in which case extra columns get synthesized names.
func buildTable(rows [][]string, header, widen bool) (*dataset.Table, error) {
	if len(rows) == 0 {
		if header {
			return nil, fmt.Errorf("%w: file is empty", ErrDecode)
		}
		return nil, fmt.Errorf("%w: no columns to parse from file", ErrDecode)
	}

	var names []string
	if header {
		names = headerNames(rows[0])
		rows = rows[1:]
	} else {
		names = columnNames(0, len(rows[0]))
	}

	if widen {
		width := len(names)
		for _, r := range rows {
			width = max(width, len(r))
		}
		names = append(names, columnNames(len(names), width)...)
	}

	records := make([][]any, 0, len(rows))
	for _, r := range rows {
		if len(r) == 0 {
			continue
		}
		rec := make([]any, len(r))
		for i, s := range r {
			if !IsNullToken(s) {
				rec[i] = s
			}
		}
		records = append(records, rec)
	}

	t, err := dataset.New(names, records)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	return t, nil
}

// columnNames synthesizes names for columns from..to-1 (0-based).
func columnNames(from, to int) []string {
	var names []string
	for i := from; i < to; i++ {
		names = append(names, "COLUMN_"+strconv.Itoa(i+1))
	}
	return names
}

// headerNames cleans a header row: blank names become COLUMN_<n> and
// repeated names get a numeric suffix.
func headerNames(row []string) []string {
	names := make([]string, len(row))
	seen := make(map[string]int, len(row))
	for i, raw := range row {
		name := strings.TrimSpace(raw)
		if name == "" {
			name = "COLUMN_" + strconv.Itoa(i+1)
		}
		if n := seen[name]; n > 0 {
			seen[name] = n + 1
			name = fmt.Sprintf("%s.%d", name, n)
		} else {
			seen[name] = 1
		}
		names[i] = name
	}
	return names
}
