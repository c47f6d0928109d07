package ingest

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	// excelUnixEpoch is the serial day number of 1970-01-01 in the 1900 date system.
	excelUnixEpoch = 25569
	// maxSerial is 31/12/9999, the last day a spreadsheet can represent.
	maxSerial      = 2958465
	dateLayout     = "02/01/2006"
	textDateLayout = "2/1/2006"
	isoDateLayout  = "2006-01-02"
)

func trimCell(raw string) string {
	return strings.TrimSpace(strings.TrimPrefix(raw, "\ufeff"))
}

// parseCost 解析成本数值，空白或非数值返回无效值
func parseCost(raw string) decimal.NullDecimal {
	s := strings.ReplaceAll(trimCell(raw), ",", "")
	if s == "" {
		return decimal.NullDecimal{}
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: d, Valid: true}
}

// SerialToDate converts a spreadsheet serial day number to DD/MM/YYYY.
// Zero, negative, NaN, infinite and out-of-range serials have no date.
func SerialToDate(serial float64) (string, bool) {
	if math.IsNaN(serial) || math.IsInf(serial, 0) || serial <= 0 || serial >= maxSerial+1 {
		return "", false
	}
	days := int64(math.Floor(serial)) - excelUnixEpoch
	t := time.Unix(0, 0).UTC().AddDate(0, 0, int(days))
	return t.Format(dateLayout), true
}

// parseDate 解析日期单元格；textDates 为 true 时也接受 DD/MM/YYYY 与 YYYY-MM-DD 文本
func parseDate(raw string, textDates bool) string {
	s := trimCell(raw)
	if s == "" {
		return ""
	}
	if v, err := strconv.ParseFloat(s, 64); err == nil {
		date, _ := SerialToDate(v)
		return date
	}
	if !textDates {
		return ""
	}
	if t, err := time.Parse(textDateLayout, s); err == nil {
		return t.Format(dateLayout)
	}
	if t, err := time.Parse(isoDateLayout, s); err == nil {
		return t.Format(dateLayout)
	}
	return ""
}
