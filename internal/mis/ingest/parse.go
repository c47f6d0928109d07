package ingest

import (
	"bytes"
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/bitfantasy/nimo-mis/internal/mis/entity"
	"github.com/jszwec/csvutil"
	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// Format 上传文件格式
type Format string

const (
	FormatCSV         Format = "csv"
	FormatSpreadsheet Format = "spreadsheet"
)

// spreadsheetPreambleRows are the title and header rows above the data in the MIS workbook.
const spreadsheetPreambleRows = 3

// ErrUnsupportedFormat is wrapped in a ParseError when the format tag or file extension is unknown.
var ErrUnsupportedFormat = errors.New("please select a valid file type")

// ParseError 文件无法解析，整批失败
type ParseError struct {
	Format Format
	Err    error
}

func (e *ParseError) Error() string {
	if e.Format == "" {
		return fmt.Sprintf("parse upload: %v", e.Err)
	}
	return fmt.Sprintf("parse %s upload: %v", e.Format, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Row 解析后的一行数据
type Row struct {
	Line int `json:"line"` // 1-based row number in the source file
	entity.CostRecordFields
}

// ParseFormat 解析格式标签，支持 csv / spreadsheet / xlsx
func ParseFormat(tag string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(tag)) {
	case "csv":
		return FormatCSV, nil
	case "spreadsheet", "xlsx":
		return FormatSpreadsheet, nil
	}
	return "", &ParseError{Err: fmt.Errorf("%w: %q", ErrUnsupportedFormat, tag)}
}

// FormatFromFilename 根据扩展名判断格式
func FormatFromFilename(name string) (Format, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv":
		return FormatCSV, nil
	case ".xlsx":
		return FormatSpreadsheet, nil
	}
	return "", &ParseError{Err: fmt.Errorf("%w: %s", ErrUnsupportedFormat, name)}
}

// Fingerprint returns the hex SHA-256 of an upload, used as the default batch id.
func Fingerprint(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Parse decodes an upload into rows. Any structural problem fails the whole file with a
// ParseError and no rows; bad cost or date cells only blank the field.
func Parse(data []byte, format Format) ([]Row, error) {
	var (
		rows []Row
		err  error
	)
	switch format {
	case FormatCSV:
		rows, err = parseCSV(data)
	case FormatSpreadsheet:
		rows, err = parseSpreadsheet(data)
	default:
		return nil, &ParseError{Format: format, Err: ErrUnsupportedFormat}
	}
	if err != nil {
		return nil, &ParseError{Format: format, Err: err}
	}
	return rows, nil
}

// csvRecord mirrors Columns by normalised header name.
type csvRecord struct {
	NDCCode            string `csv:"ndc_code"`
	Plant              string `csv:"plant"`
	DosageForm         string `csv:"dosage_form"`
	MaterialCode       string `csv:"material_code"`
	Description        string `csv:"description"`
	Product            string `csv:"product"`
	Strength           string `csv:"strength"`
	PackSize           string `csv:"pack_size"`
	RMC                string `csv:"rmc"`
	PMC                string `csv:"pmc"`
	Consumables        string `csv:"consumables"`
	ConversionCost     string `csv:"conversion_cost"`
	AcquisitionCostCMO string `csv:"acquisition_cost_cmo"`
	InterestOnWC       string `csv:"interest_on_wc"`
	COP                string `csv:"cop"`
	FreightDDPSea      string `csv:"freight_ddp_sea"`
	COGS               string `csv:"cogs"`
	UpdatedDate        string `csv:"updated_date"`
	RemarksOnChanges   string `csv:"remarks_on_changes"`
}

// values returns the record in Columns order.
func (r csvRecord) values() []string {
	return []string{
		r.NDCCode, r.Plant, r.DosageForm, r.MaterialCode, r.Description, r.Product, r.Strength, r.PackSize,
		r.RMC, r.PMC, r.Consumables, r.ConversionCost, r.AcquisitionCostCMO, r.InterestOnWC, r.COP,
		r.FreightDDPSea, r.COGS, r.UpdatedDate, r.RemarksOnChanges,
	}
}

var headerReplacer = strings.NewReplacer(" ", "_", "-", "_")

// NormalizeHeader maps a CSV header label onto a column name ("NDC Code" -> "ndc_code").
func NormalizeHeader(h string) string {
	return headerReplacer.Replace(strings.ToLower(strings.TrimSpace(h)))
}

func parseCSV(data []byte) ([]Row, error) {
	// 去除 UTF-8 BOM
	src := transform.NewReader(bytes.NewReader(data), unicode.BOMOverride(unicode.UTF8.NewDecoder()))
	r := csv.NewReader(src)
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	seen := make(map[string]bool, len(header))
	for i := range header {
		header[i] = NormalizeHeader(header[i])
		if header[i] == "" {
			continue
		}
		if seen[header[i]] {
			return nil, fmt.Errorf("duplicate column %q", header[i])
		}
		seen[header[i]] = true
	}

	fr := &fittedReader{r: r, width: len(header)}
	dec, err := csvutil.NewDecoder(fr, header...)
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	var rows []Row
	for {
		var rec csvRecord
		if err := dec.Decode(&rec); err != nil {
			if err == io.EOF {
				break
			}
			return nil, fmt.Errorf("line %d: %w", fr.line, err)
		}
		rows = append(rows, buildRow(fr.line, rec.values(), true))
	}
	return rows, nil
}

// fittedReader pads short records and truncates long ones to the header width, and keeps the
// source line of the last record read.
type fittedReader struct {
	r     *csv.Reader
	width int
	line  int
}

func (f *fittedReader) Read() ([]string, error) {
	record, err := f.r.Read()
	if err != nil {
		return nil, err
	}
	f.line, _ = f.r.FieldPos(0)
	switch {
	case len(record) > f.width:
		record = record[:f.width]
	case len(record) < f.width:
		record = append(record, make([]string, f.width-len(record))...)
	}
	return record, nil
}

func parseSpreadsheet(data []byte) ([]Row, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.New("workbook has no sheets")
	}
	// 原始值读取，日期保持为序列号
	cells, err := f.GetRows(sheets[0], excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("read sheet %s: %w", sheets[0], err)
	}
	if len(cells) <= spreadsheetPreambleRows {
		return nil, nil
	}

	var rows []Row
	for i, values := range cells[spreadsheetPreambleRows:] {
		if isBlank(values) {
			continue
		}
		rows = append(rows, buildRow(i+spreadsheetPreambleRows+1, values, false))
	}
	return rows, nil
}

func buildRow(line int, values []string, textDates bool) Row {
	row := Row{Line: line}
	for _, col := range Columns {
		var raw string
		if col.Index < len(values) {
			raw = values[col.Index]
		}
		col.assign(&row.CostRecordFields, raw, textDates)
	}
	return row
}

func isBlank(values []string) bool {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
