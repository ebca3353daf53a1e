// Package errors provides the categorized error model shared by the purchase
// engine and the HTTP layer. Purchase rejections are deterministic 4xx-style
// failures that never mutate state; system errors cover the storage, cache
// and payment collaborators.
package errors

import (
	"fmt"
	"math/big"
	"net/http"

	"github.com/crowdsale-engine/internal/types"
	"github.com/ethereum/go-ethereum/common"
)

// ErrorCategory represents the category of an error
type ErrorCategory string

const (
	// CategoryRejection represents a purchase validation rejection (4xx)
	CategoryRejection ErrorCategory = "rejection"
	// CategoryValidation represents malformed caller input (4xx)
	CategoryValidation ErrorCategory = "validation"
	// CategoryNotFound represents unknown sale or address lookups
	CategoryNotFound ErrorCategory = "not_found"
	// CategoryConflict represents lifecycle conflicts (already initialized, ...)
	CategoryConflict ErrorCategory = "conflict"
	// CategorySystem represents internal errors (5xx)
	CategorySystem ErrorCategory = "system"
	// CategoryDatabase represents storage errors
	CategoryDatabase ErrorCategory = "database"
	// CategoryCache represents cache errors
	CategoryCache ErrorCategory = "cache"
	// CategoryPayment represents payment-transfer errors; these abort the
	// purchase before any state is committed
	CategoryPayment ErrorCategory = "payment"
)

// CategorizedError represents an error with category and HTTP status code
type CategorizedError struct {
	Category   ErrorCategory
	StatusCode int
	Code       string
	Message    string
	Details    map[string]interface{}
	Cause      error
}

// Error implements the error interface
func (e *CategorizedError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause
func (e *CategorizedError) Unwrap() error {
	return e.Cause
}

// ToServiceError converts to a ServiceError
func (e *CategorizedError) ToServiceError() *types.ServiceError {
	return &types.ServiceError{
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
	}
}

// IsRejection reports whether err is a purchase rejection, as opposed to a
// system failure. Rejections carry a stable types.RejectionCode in Code.
func IsRejection(err error) bool {
	catErr, ok := err.(*CategorizedError)
	return ok && catErr.Category == CategoryRejection
}

// RejectionCodeOf returns the rejection code carried by err, or "" when err
// is not a rejection.
func RejectionCodeOf(err error) types.RejectionCode {
	if catErr, ok := err.(*CategorizedError); ok && catErr.Category == CategoryRejection {
		return types.RejectionCode(catErr.Code)
	}
	return ""
}

// Purchase rejections

// NewNoWeiSentError rejects a zero payment
func NewNoWeiSentError() *CategorizedError {
	return &CategorizedError{
		Category:   CategoryRejection,
		StatusCode: http.StatusBadRequest,
		Code:       string(types.RejectNoWeiSent),
		Message:    "payment amount must be greater than zero",
	}
}

// NewNotInitializedError rejects purchases against a sale whose setup is
// incomplete
func NewNotInitializedError(saleID string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryRejection,
		StatusCode: http.StatusConflict,
		Code:       string(types.RejectNotInitialized),
		Message:    "crowdsale is not initialized",
		Details: map[string]interface{}{
			"saleId": saleID,
		},
	}
}

// NewCrowdsaleFinishedError rejects purchases against a finalized, elapsed,
// or sold-out sale. The triggering cause is carried in the details.
func NewCrowdsaleFinishedError(saleID string, cause types.FinishCause) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryRejection,
		StatusCode: http.StatusConflict,
		Code:       string(types.RejectCrowdsaleFinished),
		Message:    "crowdsale is finished",
		Details: map[string]interface{}{
			"saleId": saleID,
			"cause":  string(cause),
		},
	}
}

// NewBeforeStartTimeError rejects purchases ahead of the sale window
func NewBeforeStartTimeError(startTime, now uint64) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryRejection,
		StatusCode: http.StatusConflict,
		Code:       string(types.RejectBeforeStartTime),
		Message:    "crowdsale has not started yet",
		Details: map[string]interface{}{
			"startTime": startTime,
			"now":       now,
		},
	}
}

// NewUnderMinCapError rejects a first contribution below the applicable
// minimum purchase size
func NewUnderMinCapError(minimumUnits, requestedUnits *big.Int) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryRejection,
		StatusCode: http.StatusBadRequest,
		Code:       string(types.RejectUnderMinCap),
		Message:    "first contribution is below the minimum purchase size",
		Details: map[string]interface{}{
			"minimumUnits":   minimumUnits.String(),
			"requestedUnits": requestedUnits.String(),
		},
	}
}

// NewSpendAmountExceededError rejects a whitelisted buyer with no remaining
// allowance. An address missing from the whitelist is treated as having a
// zero allowance.
func NewSpendAmountExceededError(buyer common.Address) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryRejection,
		StatusCode: http.StatusForbidden,
		Code:       string(types.RejectSpendAmountExceeded),
		Message:    "buyer has no remaining whitelist allowance",
		Details: map[string]interface{}{
			"buyer": buyer.Hex(),
		},
	}
}

// NewInvalidPurchaseAmountError rejects a nonzero payment that resolves to
// zero units after clipping
func NewInvalidPurchaseAmountError(paymentWei, priceWei *big.Int) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryRejection,
		StatusCode: http.StatusBadRequest,
		Code:       string(types.RejectInvalidPurchaseAmount),
		Message:    "payment is too small to purchase any units at the current price",
		Details: map[string]interface{}{
			"paymentWei": paymentWei.String(),
			"priceWei":   priceWei.String(),
		},
	}
}

// Caller input and lifecycle errors

// NewInvalidParameterError creates an invalid parameter error
func NewInvalidParameterError(param string, reason string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryValidation,
		StatusCode: http.StatusBadRequest,
		Code:       "INVALID_PARAMETER",
		Message:    fmt.Sprintf("invalid parameter '%s': %s", param, reason),
		Details: map[string]interface{}{
			"parameter": param,
			"reason":    reason,
		},
	}
}

// NewInvalidAddressError creates an invalid address error
func NewInvalidAddressError(address string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryValidation,
		StatusCode: http.StatusBadRequest,
		Code:       "INVALID_ADDRESS",
		Message:    fmt.Sprintf("invalid address format: %s", address),
		Details: map[string]interface{}{
			"address": address,
		},
	}
}

// NewSaleNotFoundError creates a not found error for an unknown sale
func NewSaleNotFoundError(saleID string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryNotFound,
		StatusCode: http.StatusNotFound,
		Code:       "SALE_NOT_FOUND",
		Message:    fmt.Sprintf("sale not found: %s", saleID),
		Details: map[string]interface{}{
			"saleId": saleID,
		},
	}
}

// NewInvalidSaleConfigError creates a config validation error, detected at
// initialization rather than purchase time
func NewInvalidSaleConfigError(reason error) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryValidation,
		StatusCode: http.StatusBadRequest,
		Code:       "INVALID_SALE_CONFIG",
		Message:    "sale configuration is invalid",
		Cause:      reason,
	}
}

// NewConflictError creates a conflict error
func NewConflictError(message string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryConflict,
		StatusCode: http.StatusConflict,
		Code:       "CONFLICT",
		Message:    message,
	}
}

// System errors (5xx)

// NewInternalError creates an internal server error
func NewInternalError(message string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategorySystem,
		StatusCode: http.StatusInternalServerError,
		Code:       "INTERNAL_ERROR",
		Message:    message,
		Cause:      cause,
	}
}

// NewDatabaseError creates a database error
func NewDatabaseError(operation string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryDatabase,
		StatusCode: http.StatusInternalServerError,
		Code:       "DATABASE_ERROR",
		Message:    fmt.Sprintf("database error during %s", operation),
		Cause:      cause,
		Details: map[string]interface{}{
			"operation": operation,
		},
	}
}

// NewCacheError creates a cache error
func NewCacheError(operation string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryCache,
		StatusCode: http.StatusInternalServerError,
		Code:       "CACHE_ERROR",
		Message:    fmt.Sprintf("cache error during %s", operation),
		Cause:      cause,
		Details: map[string]interface{}{
			"operation": operation,
		},
	}
}

// NewPaymentError wraps a failed payment transfer. The purchase engine
// treats this as fatal for the call: nothing is committed.
func NewPaymentError(destination common.Address, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryPayment,
		StatusCode: http.StatusBadGateway,
		Code:       "PAYMENT_FAILED",
		Message:    "payment transfer to team wallet failed",
		Cause:      cause,
		Details: map[string]interface{}{
			"destination": destination.Hex(),
		},
	}
}

// Categorize categorizes an existing error
func Categorize(err error) *CategorizedError {
	if err == nil {
		return nil
	}

	// If already categorized, return as-is
	if catErr, ok := err.(*CategorizedError); ok {
		return catErr
	}

	// If it's a ServiceError, map by code
	if svcErr, ok := err.(*types.ServiceError); ok {
		return categorizeServiceError(svcErr)
	}

	// Default to internal error
	return NewInternalError("unexpected error", err)
}

// categorizeServiceError categorizes a ServiceError
func categorizeServiceError(err *types.ServiceError) *CategorizedError {
	switch types.RejectionCode(err.Code) {
	case types.RejectNoWeiSent, types.RejectUnderMinCap, types.RejectInvalidPurchaseAmount:
		return &CategorizedError{
			Category:   CategoryRejection,
			StatusCode: http.StatusBadRequest,
			Code:       err.Code,
			Message:    err.Message,
			Details:    err.Details,
		}
	case types.RejectNotInitialized, types.RejectCrowdsaleFinished, types.RejectBeforeStartTime:
		return &CategorizedError{
			Category:   CategoryRejection,
			StatusCode: http.StatusConflict,
			Code:       err.Code,
			Message:    err.Message,
			Details:    err.Details,
		}
	case types.RejectSpendAmountExceeded:
		return &CategorizedError{
			Category:   CategoryRejection,
			StatusCode: http.StatusForbidden,
			Code:       err.Code,
			Message:    err.Message,
			Details:    err.Details,
		}
	}

	switch err.Code {
	case "SALE_NOT_FOUND":
		return &CategorizedError{
			Category:   CategoryNotFound,
			StatusCode: http.StatusNotFound,
			Code:       err.Code,
			Message:    err.Message,
			Details:    err.Details,
		}
	case "INVALID_ADDRESS", "INVALID_PARAMETER", "INVALID_SALE_CONFIG":
		return &CategorizedError{
			Category:   CategoryValidation,
			StatusCode: http.StatusBadRequest,
			Code:       err.Code,
			Message:    err.Message,
			Details:    err.Details,
		}
	default:
		return &CategorizedError{
			Category:   CategorySystem,
			StatusCode: http.StatusInternalServerError,
			Code:       err.Code,
			Message:    err.Message,
			Details:    err.Details,
		}
	}
}

// GetHTTPStatusCode returns the HTTP status code for an error
func GetHTTPStatusCode(err error) int {
	if catErr := Categorize(err); catErr != nil {
		return catErr.StatusCode
	}
	return http.StatusInternalServerError
}

// IsRetryable determines if an error is retryable
func IsRetryable(err error) bool {
	catErr := Categorize(err)
	if catErr == nil {
		return false
	}

	// Rejections are deterministic; retrying them is pointless
	switch catErr.Category {
	case CategoryDatabase, CategoryCache:
		return true
	case CategorySystem:
		return catErr.StatusCode == http.StatusServiceUnavailable ||
			catErr.StatusCode == http.StatusGatewayTimeout
	default:
		return false
	}
}

// IsUserError determines if an error is a user error (4xx)
func IsUserError(err error) bool {
	catErr := Categorize(err)
	if catErr == nil {
		return false
	}

	return catErr.StatusCode >= 400 && catErr.StatusCode < 500
}

// IsSystemError determines if an error is a system error (5xx)
func IsSystemError(err error) bool {
	catErr := Categorize(err)
	if catErr == nil {
		return false
	}

	return catErr.StatusCode >= 500
}
