package consensus

import "fmt"

// ErrorCode names a category of consensus rejection; see spec.md §4.4/§4.7/§7.
type ErrorCode string

const (
	ErrCodeInvalidEncoding       ErrorCode = "InvalidEncoding"
	ErrCodeMalformedTx           ErrorCode = "MalformedTx"
	ErrCodeTimestampOutOfBounds  ErrorCode = "TimestampOutOfBounds"
	ErrCodeInvalidSignature      ErrorCode = "InvalidSignature"
	ErrCodeBadNonce              ErrorCode = "BadNonce"
	ErrCodeInsufficientFunds     ErrorCode = "InsufficientFunds"
	ErrCodeDoubleSpend           ErrorCode = "DoubleSpend"
	ErrCodeProtectedSender       ErrorCode = "ProtectedSender"
	ErrCodeInvalidBlock          ErrorCode = "InvalidBlock"
)

// CoreError is the single typed error shape every consensus-critical
// rejection returns: a machine-readable Code plus a free-text Detail,
// matching spec.md §7's propagation policy.
type CoreError struct {
	Code   ErrorCode
	Detail string
}

func (e *CoreError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Detail == "" {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Detail)
}

func coreErr(code ErrorCode, format string, args ...any) error {
	return &CoreError{Code: code, Detail: fmt.Sprintf(format, args...)}
}

// IsCode reports whether err is a *CoreError carrying the given code.
func IsCode(err error, code ErrorCode) bool {
	ce, ok := err.(*CoreError)
	return ok && ce != nil && ce.Code == code
}
