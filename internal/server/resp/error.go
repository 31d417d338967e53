package resp

const (
	ErrBadRequest       = "Invalid request parameters"
	ErrInvalidJSON      = "Invalid JSON format"
	ErrInvalidParam     = "Invalid parameter"
	ErrResourceNotFound = "Resource not found"
	ErrInternalServer   = "An unexpected error occurred"
	ErrDatabase         = "Database operation failed"
	ErrUnauthorized     = "Authentication failed"
	ErrQuotaExhausted   = "Insufficient remaining quota"
	ErrAllocationDenied = "Allocation is inactive or expired"
)
