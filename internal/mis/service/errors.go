package service

import (
	"errors"
	"fmt"
)

var (
	ErrRecordNotFound  = errors.New("record not found")
	ErrBatchInProgress = errors.New("batch submission already in progress")
	ErrBatchSubmitted  = errors.New("batch already submitted")
	ErrEmptyBatchID    = errors.New("batch id is required")
)

// Stage 行处理阶段
type Stage string

const (
	StageValidate Stage = "validate"
	StageUpsert   Stage = "upsert"
	StageBind     Stage = "bind"
)

// RowValidationError 行校验失败，该行跳过
type RowValidationError struct {
	Line   int
	Reason string
}

func (e *RowValidationError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("row %d: %s", e.Line, e.Reason)
	}
	return e.Reason
}

// UpsertError 记录写入失败，该行不再绑定附件
type UpsertError struct {
	Key string
	Err error
}

func (e *UpsertError) Error() string {
	return fmt.Sprintf("upsert %s: %v", e.Key, e.Err)
}

func (e *UpsertError) Unwrap() error { return e.Err }

// BindError 附件写入失败，记录已写入
type BindError struct {
	Key      string
	Filename string
	Err      error
}

func (e *BindError) Error() string {
	return fmt.Sprintf("bind %s to %s: %v", e.Filename, e.Key, e.Err)
}

func (e *BindError) Unwrap() error { return e.Err }
