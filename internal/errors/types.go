package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode 错误码类型
type ErrorCode string

// 预定义错误码
const (
	// 通用错误
	ErrCodeInternalServer   ErrorCode = "INTERNAL_SERVER_ERROR"
	ErrCodeBadRequest       ErrorCode = "BAD_REQUEST"
	ErrCodeNotFound         ErrorCode = "NOT_FOUND"
	ErrCodeConflict         ErrorCode = "CONFLICT"
	ErrCodeValidationFailed ErrorCode = "VALIDATION_FAILED"

	// 引擎错误
	ErrCodeInvalidEmbedding  ErrorCode = "INVALID_EMBEDDING"
	ErrCodeTransientConflict ErrorCode = "TRANSIENT_CONFLICT"
	ErrCodeClusterNotFound   ErrorCode = "CLUSTER_NOT_FOUND"
	ErrCodeSelfMerge         ErrorCode = "SELF_MERGE"
	ErrCodeNameCollision     ErrorCode = "NAME_COLLISION"
	ErrCodeDuplicateAsset    ErrorCode = "DUPLICATE_ASSET"

	// 数据库错误
	ErrCodeDatabaseError    ErrorCode = "DATABASE_ERROR"
	ErrCodeConnectionFailed ErrorCode = "CONNECTION_FAILED"
)

// ErrorType 错误类型
type ErrorType int

const (
	ErrorTypeSystem ErrorType = iota
	ErrorTypeBusiness
	ErrorTypeValidation
	ErrorTypeTransient
)

// AppError 应用错误结构体
type AppError struct {
	Code      ErrorCode   `json:"code"`
	Message   string      `json:"message"`
	Type      ErrorType   `json:"type"`
	HTTPCode  int         `json:"-"`
	Details   interface{} `json:"details,omitempty"`
	Cause     error       `json:"-"`
}

// Error 实现error接口
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap 返回底层错误
func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithDetails 添加错误详情
func (e *AppError) WithDetails(details interface{}) *AppError {
	e.Details = details
	return e
}

// WithCause 添加错误原因
func (e *AppError) WithCause(cause error) *AppError {
	e.Cause = cause
	return e
}

// 错误构造函数

// NewInvalidEmbeddingError 创建向量校验错误（不可重试）
func NewInvalidEmbeddingError(reason string) *AppError {
	return &AppError{
		Code:     ErrCodeInvalidEmbedding,
		Message:  fmt.Sprintf("invalid embedding: %s", reason),
		Type:     ErrorTypeValidation,
		HTTPCode: http.StatusBadRequest,
	}
}

// NewTransientConflictError 创建乐观并发重试耗尽错误（调用方可重投递）
func NewTransientConflictError(op string, attempts int) *AppError {
	return &AppError{
		Code:     ErrCodeTransientConflict,
		Message:  fmt.Sprintf("%s: optimistic retry budget exhausted after %d attempts", op, attempts),
		Type:     ErrorTypeTransient,
		HTTPCode: http.StatusConflict,
	}
}

// NewClusterNotFoundError 创建聚类不存在错误
func NewClusterNotFoundError(id string) *AppError {
	return &AppError{
		Code:     ErrCodeClusterNotFound,
		Message:  fmt.Sprintf("cluster %s not found", id),
		Type:     ErrorTypeBusiness,
		HTTPCode: http.StatusNotFound,
	}
}

// NewSelfMergeError 创建自合并错误
func NewSelfMergeError(id string) *AppError {
	return &AppError{
		Code:     ErrCodeSelfMerge,
		Message:  fmt.Sprintf("cluster %s cannot be merged into itself", id),
		Type:     ErrorTypeValidation,
		HTTPCode: http.StatusBadRequest,
	}
}

// NewNameCollisionError 创建名称冲突错误
func NewNameCollisionError(name string) *AppError {
	return &AppError{
		Code:     ErrCodeNameCollision,
		Message:  fmt.Sprintf("cluster name '%s' already exists", name),
		Type:     ErrorTypeValidation,
		HTTPCode: http.StatusConflict,
	}
}

// NewValidationError 创建验证错误
func NewValidationError(message string) *AppError {
	return &AppError{
		Code:     ErrCodeValidationFailed,
		Message:  message,
		Type:     ErrorTypeValidation,
		HTTPCode: http.StatusBadRequest,
	}
}

// NewSystemError 创建系统错误
func NewSystemError(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:     code,
		Message:  message,
		Type:     ErrorTypeSystem,
		HTTPCode: http.StatusInternalServerError,
	}
}

// 错误判定

func hasCode(err error, code ErrorCode) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// IsInvalidEmbedding 是否为向量校验错误
func IsInvalidEmbedding(err error) bool {
	return hasCode(err, ErrCodeInvalidEmbedding)
}

// IsTransientConflict 是否为可重试冲突错误
func IsTransientConflict(err error) bool {
	return hasCode(err, ErrCodeTransientConflict)
}

// IsClusterNotFound 是否为聚类不存在错误
func IsClusterNotFound(err error) bool {
	return hasCode(err, ErrCodeClusterNotFound)
}

// IsSelfMerge 是否为自合并错误
func IsSelfMerge(err error) bool {
	return hasCode(err, ErrCodeSelfMerge)
}

// IsNameCollision 是否为名称冲突错误
func IsNameCollision(err error) bool {
	return hasCode(err, ErrCodeNameCollision)
}

// GetAppError 获取AppError，如果不是则包装为系统错误
func GetAppError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return NewSystemError(ErrCodeInternalServer, "internal server error").WithCause(err)
}
