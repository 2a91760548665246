package core

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/extrame/xls"
	"github.com/xuri/excelize/v2"

	"github.com/JonMunkholm/sage/internal/dataset"
)

// readExcel reads the first sheet of a workbook. Cells carry their stored
// value, not the text the number format renders, so "1,234.50" arrives as
// "1234.5". Date-formatted serials become ISO dates.
func readExcel(path string, header bool) (*dataset.Table, int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, 0, err
	}

	var rows [][]string
	if strings.EqualFold(filepath.Ext(path), ".xls") {
		rows, err = readXLS(path)
	} else {
		rows, err = readXLSX(path)
	}
	if err != nil {
		return nil, info.Size(), fmt.Errorf("%w: %w", ErrDecode, err)
	}

	t, err := buildTable(rows, header, true)
	return t, info.Size(), err
}

func readXLSX(path string) ([][]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("workbook has no sheets")
	}
	sheet := sheets[0]

	rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, err
	}

	date1904 := false
	if props, err := f.GetWorkbookProps(); err == nil && props.Date1904 != nil {
		date1904 = *props.Date1904
	}

	dates := map[int]bool{}
	for r, row := range rows {
		for c, v := range row {
			serial, err := strconv.ParseFloat(v, 64)
			if err != nil {
				continue
			}
			cell, err := excelize.CoordinatesToCellName(c+1, r+1)
			if err != nil {
				return nil, err
			}
			idx, err := f.GetCellStyle(sheet, cell)
			if err != nil {
				return nil, err
			}
			isDate, ok := dates[idx]
			if !ok {
				isDate = dateStyle(f, idx)
				dates[idx] = isDate
			}
			if !isDate {
				continue
			}
			tm, err := excelize.ExcelDateToTime(serial, date1904)
			if err != nil {
				continue
			}
			row[c] = formatExcelDate(tm)
		}
	}
	return rows, nil
}

// dateStyle reports whether the style's number format renders a date or time.
func dateStyle(f *excelize.File, idx int) bool {
	if idx == 0 {
		return false
	}
	style, err := f.GetStyle(idx)
	if err != nil || style == nil {
		return false
	}
	if style.CustomNumFmt != nil {
		return dateFormatCode(*style.CustomNumFmt)
	}
	switch n := style.NumFmt; {
	case n >= 14 && n <= 22, n >= 27 && n <= 36, n >= 45 && n <= 47, n >= 50 && n <= 58:
		return true
	}
	return false
}

// dateFormatCode looks for date or time tokens outside quoted literals and
// bracketed sections such as [Red] or [$-409].
func dateFormatCode(code string) bool {
	quoted, bracket := false, false
	for i := 0; i < len(code); i++ {
		ch := code[i]
		switch {
		case ch == '"':
			quoted = !quoted
		case quoted:
		case ch == '\\':
			i++
		case ch == '[':
			bracket = true
		case ch == ']':
			bracket = false
		case bracket:
		default:
			switch ch | 0x20 {
			case 'y', 'm', 'd', 'h', 's':
				return true
			}
		}
	}
	return false
}

func formatExcelDate(tm time.Time) string {
	if tm.Hour() == 0 && tm.Minute() == 0 && tm.Second() == 0 {
		return tm.Format("2006-01-02")
	}
	return tm.Format("2006-01-02 15:04:05")
}

func readXLS(path string) ([][]string, error) {
	wb, err := xls.Open(path, "utf-8")
	if err != nil {
		return nil, err
	}
	sheet := wb.GetSheet(0)
	if sheet == nil {
		return nil, fmt.Errorf("workbook has no sheets")
	}

	rows := make([][]string, 0, int(sheet.MaxRow)+1)
	for i := 0; i <= int(sheet.MaxRow); i++ {
		row := sheet.Row(i)
		if row == nil {
			rows = append(rows, nil)
			continue
		}
		// Numeric cells already come back unformatted.
		cells := make([]string, row.LastCol())
		for j := row.FirstCol(); j < row.LastCol(); j++ {
			cells[j] = row.Col(j)
		}
		rows = append(rows, cells)
	}

	// Trailing empty rows are not data.
	for len(rows) > 0 && len(rows[len(rows)-1]) == 0 {
		rows = rows[:len(rows)-1]
	}
	return rows, nil
}
