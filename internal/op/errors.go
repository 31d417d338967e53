package op

import "errors"

var (
	ErrAllocationNotFound = errors.New("allocation not found")
	ErrInsufficientQuota  = errors.New("insufficient remaining quota")
	ErrPaymentNotPending  = errors.New("payment request is not pending")
	ErrPaymentNotFound    = errors.New("payment request not found")
	ErrTxHashUsed         = errors.New("transaction hash already credited")
	ErrPackageNotFound    = errors.New("package not found")
)
