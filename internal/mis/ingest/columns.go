package ingest

import (
	"github.com/bitfantasy/nimo-mis/internal/mis/entity"
	"github.com/shopspring/decimal"
)

// ColumnKind 列值类型
type ColumnKind int

const (
	KindText ColumnKind = iota
	KindCost
	KindDate
)

// Column 工作簿固定列定义
// Index is the zero-based position in the spreadsheet; Name is the normalised CSV header.
type Column struct {
	Index  int
	Header string
	Name   string
	Kind   ColumnKind

	text func(*entity.CostRecordFields) *string
	cost func(*entity.CostRecordFields) *decimal.NullDecimal
}

// Columns is the positional layout of the MIS cost workbook. Rows are read in this order
// for both formats.
var Columns = []Column{
	{Index: 0, Header: "NDC Code", Name: "ndc_code", Kind: KindText, text: func(f *entity.CostRecordFields) *string { return &f.NDCCode }},
	{Index: 1, Header: "Plant", Name: "plant", Kind: KindText, text: func(f *entity.CostRecordFields) *string { return &f.Plant }},
	{Index: 2, Header: "Dosage_form", Name: "dosage_form", Kind: KindText, text: func(f *entity.CostRecordFields) *string { return &f.DosageForm }},
	{Index: 3, Header: "Material_code", Name: "material_code", Kind: KindText, text: func(f *entity.CostRecordFields) *string { return &f.MaterialCode }},
	{Index: 4, Header: "Description", Name: "description", Kind: KindText, text: func(f *entity.CostRecordFields) *string { return &f.Description }},
	{Index: 5, Header: "Product", Name: "product", Kind: KindText, text: func(f *entity.CostRecordFields) *string { return &f.Product }},
	{Index: 6, Header: "Strength", Name: "strength", Kind: KindText, text: func(f *entity.CostRecordFields) *string { return &f.Strength }},
	{Index: 7, Header: "Pack_size", Name: "pack_size", Kind: KindText, text: func(f *entity.CostRecordFields) *string { return &f.PackSize }},
	{Index: 8, Header: "RMC", Name: "rmc", Kind: KindCost, cost: func(f *entity.CostRecordFields) *decimal.NullDecimal { return &f.RMC }},
	{Index: 9, Header: "PMC", Name: "pmc", Kind: KindCost, cost: func(f *entity.CostRecordFields) *decimal.NullDecimal { return &f.PMC }},
	{Index: 10, Header: "Consumables", Name: "consumables", Kind: KindCost, cost: func(f *entity.CostRecordFields) *decimal.NullDecimal { return &f.Consumables }},
	{Index: 11, Header: "Conversion_cost", Name: "conversion_cost", Kind: KindCost, cost: func(f *entity.CostRecordFields) *decimal.NullDecimal { return &f.ConversionCost }},
	{Index: 12, Header: "Acquisition_Cost_CMO", Name: "acquisition_cost_cmo", Kind: KindCost, cost: func(f *entity.CostRecordFields) *decimal.NullDecimal { return &f.AcquisitionCostCMO }},
	{Index: 13, Header: "Interest_on_Wc", Name: "interest_on_wc", Kind: KindCost, cost: func(f *entity.CostRecordFields) *decimal.NullDecimal { return &f.InterestOnWC }},
	{Index: 14, Header: "COP", Name: "cop", Kind: KindCost, cost: func(f *entity.CostRecordFields) *decimal.NullDecimal { return &f.COP }},
	{Index: 15, Header: "Freight_DDP_Sea", Name: "freight_ddp_sea", Kind: KindCost, cost: func(f *entity.CostRecordFields) *decimal.NullDecimal { return &f.FreightDDPSea }},
	{Index: 16, Header: "COGS", Name: "cogs", Kind: KindCost, cost: func(f *entity.CostRecordFields) *decimal.NullDecimal { return &f.COGS }},
	{Index: 17, Header: "Updated_Date", Name: "updated_date", Kind: KindDate, text: func(f *entity.CostRecordFields) *string { return &f.UpdatedDate }},
	{Index: 18, Header: "Remarks_on_Changes", Name: "remarks_on_changes", Kind: KindText, text: func(f *entity.CostRecordFields) *string { return &f.RemarksOnChanges }},
}

// Headers returns the workbook header labels in column order.
func Headers() []string {
	headers := make([]string, len(Columns))
	for i, c := range Columns {
		headers[i] = c.Header
	}
	return headers
}

// assign 将原始单元格值写入字段，数值或日期无效时置空
func (c Column) assign(f *entity.CostRecordFields, raw string, textDates bool) {
	switch c.Kind {
	case KindCost:
		*c.cost(f) = parseCost(raw)
	case KindDate:
		*c.text(f) = parseDate(raw, textDates)
	default:
		*c.text(f) = trimCell(raw)
	}
}
