package errors

// ErrorCode represents a unique error code for identifying different error types.
type ErrorCode int

const (
	// General errors (1-99)
	ErrCodeUnknown ErrorCode = 1

	// Validation errors (100-199)
	ErrCodeInvalidParameter      ErrorCode = 100
	ErrCodeInvalidConfiguration  ErrorCode = 101
	ErrCodeInsufficientData      ErrorCode = 106
	ErrCodeMissingParameter      ErrorCode = 109
	ErrCodeUnsupportedInstrument ErrorCode = 120
	ErrCodeInvalidInterval       ErrorCode = 121
	ErrCodeInvalidDateRange      ErrorCode = 122

	// Data/Resource errors (200-299)
	ErrCodeDataNotFound          ErrorCode = 200
	ErrCodeDataSourceUnavailable ErrorCode = 201
	ErrCodeNoDataFound           ErrorCode = 204

	// Market data errors (700-799)
	ErrCodeMarketDataFetchFailed   ErrorCode = 700
	ErrCodeMarketDataWriteFailed   ErrorCode = 701
	ErrCodeMarketDataParseFailed   ErrorCode = 702
	ErrCodeInvalidProvider         ErrorCode = 704
	ErrCodeProviderRateLimited     ErrorCode = 705
	ErrCodeProviderTimeout         ErrorCode = 706
	ErrCodeProviderRejectedRequest ErrorCode = 707
	ErrCodeNormalizationFailed     ErrorCode = 708
	ErrCodeProviderUnavailable     ErrorCode = 709

	// Forecast errors (900-999)
	ErrCodeForecastFailed ErrorCode = 900
)

// retryableCodes are provider conditions that may clear up on a later attempt.
var retryableCodes = map[ErrorCode]bool{
	ErrCodeMarketDataFetchFailed: true,
	ErrCodeMarketDataParseFailed: true,
	ErrCodeProviderRateLimited:   true,
	ErrCodeProviderTimeout:       true,
	ErrCodeNormalizationFailed:   true,
	ErrCodeProviderUnavailable:   true,
	ErrCodeNoDataFound:           true,
}

// Retryable reports whether the code describes a transient provider condition.
func (c ErrorCode) Retryable() bool {
	return retryableCodes[c]
}
