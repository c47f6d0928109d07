package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// CostRecordFields 成本记录的业务字段（导入行与存储记录共用）
// Updates replace every column, so a blank value in an import clears the stored one.
type CostRecordFields struct {
	NDCCode            string              `json:"ndc_code" gorm:"column:ndc_code;size:64;not null"`
	Plant              string              `json:"plant" gorm:"size:64"`
	DosageForm         string              `json:"dosage_form" gorm:"size:64"`
	MaterialCode       string              `json:"material_code" gorm:"size:64"`
	Description        string              `json:"description" gorm:"type:text"`
	Product            string              `json:"product" gorm:"size:256"`
	Strength           string              `json:"strength" gorm:"size:64"`
	PackSize           string              `json:"pack_size" gorm:"size:64"`
	RMC                decimal.NullDecimal `json:"rmc" gorm:"column:rmc;type:decimal(18,4)"`
	PMC                decimal.NullDecimal `json:"pmc" gorm:"column:pmc;type:decimal(18,4)"`
	Consumables        decimal.NullDecimal `json:"consumables" gorm:"type:decimal(18,4)"`
	ConversionCost     decimal.NullDecimal `json:"conversion_cost" gorm:"type:decimal(18,4)"`
	AcquisitionCostCMO decimal.NullDecimal `json:"acquisition_cost_cmo" gorm:"column:acquisition_cost_cmo;type:decimal(18,4)"`
	InterestOnWC       decimal.NullDecimal `json:"interest_on_wc" gorm:"column:interest_on_wc;type:decimal(18,4)"`
	COP                decimal.NullDecimal `json:"cop" gorm:"column:cop;type:decimal(18,4)"`
	FreightDDPSea      decimal.NullDecimal `json:"freight_ddp_sea" gorm:"column:freight_ddp_sea;type:decimal(18,4)"`
	COGS               decimal.NullDecimal `json:"cogs" gorm:"column:cogs;type:decimal(18,4)"`
	UpdatedDate        string              `json:"updated_date" gorm:"size:10"` // DD/MM/YYYY, empty when absent
	RemarksOnChanges   string              `json:"remarks_on_changes" gorm:"type:text"`
}

// CostRecord 按 NDC Code 唯一的成本记录
// (list_title, ndc_code) is unique; see repository.Migrate.
type CostRecord struct {
	ID        string `json:"id" gorm:"primaryKey;size:32"`
	ListTitle string `json:"list_title" gorm:"size:64;not null;index"`

	CostRecordFields `gorm:"embedded"`

	// Version is the revision marker; it only ever moves forward.
	Version   int       `json:"version" gorm:"not null;default:1"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (CostRecord) TableName() string {
	return "cost_records"
}

// CostRecordVersion 记录版本历史（只追加，不修改）
type CostRecordVersion struct {
	ID           string    `json:"id" gorm:"primaryKey;size:32"`
	RecordID     string    `json:"record_id" gorm:"size:32;not null;index:idx_cost_record_versions_record,priority:1"`
	Version      int       `json:"-" gorm:"not null;index:idx_cost_record_versions_record,priority:2"`
	VersionLabel string    `json:"version_label" gorm:"size:16;not null"` // 1.0, 2.0 ...
	CreatedAt    time.Time `json:"created_at"`

	CostRecordFields `gorm:"embedded"`
}

func (CostRecordVersion) TableName() string {
	return "cost_record_versions"
}
