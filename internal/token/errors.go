package token

import "errors"

var (
	ErrUnauthorized          = errors.New("token: caller is not the controller")
	ErrInsufficientBalance   = errors.New("token: insufficient balance")
	ErrInsufficientAllowance = errors.New("token: insufficient allowance")
	ErrTransfersDisabled     = errors.New("token: transfers are disabled")
	ErrControllerRejected    = errors.New("token: controller rejected the operation")
	ErrCloningDisabled       = errors.New("token: cloning is disabled")
	ErrInvalidForkPoint      = errors.New("token: fork point is in the future")
	ErrCloneNotActive        = errors.New("token: clone cannot be written at or before its fork block")
	ErrInvalidAmount         = errors.New("token: amount must be a non-negative integer")
	ErrLedgerNotFound        = errors.New("token: ledger not found")
	ErrLedgerExists          = errors.New("token: ledger already exists")
	ErrStaleBlock            = errors.New("token: block precedes the ledger's last write")
	ErrUnknownEvent          = errors.New("token: unknown event kind")
)

var codes = []struct {
	err  error
	code string
}{
	{ErrUnauthorized, "unauthorized"},
	{ErrInsufficientBalance, "insufficient_balance"},
	{ErrInsufficientAllowance, "insufficient_allowance"},
	{ErrTransfersDisabled, "transfers_disabled"},
	{ErrControllerRejected, "controller_rejected"},
	{ErrCloningDisabled, "cloning_disabled"},
	{ErrInvalidForkPoint, "invalid_fork_point"},
	{ErrCloneNotActive, "clone_not_active"},
	{ErrInvalidAmount, "invalid_amount"},
	{ErrLedgerNotFound, "ledger_not_found"},
	{ErrLedgerExists, "ledger_exists"},
	{ErrStaleBlock, "stale_block"},
	{ErrUnknownEvent, "unknown_event"},
}

// Code returns a stable snake_case name for err, "ok" for nil and "internal"
// for errors outside this package.
func Code(err error) string {
	if err == nil {
		return "ok"
	}
	for _, c := range codes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return "internal"
}
