package cercle

const (
	operationAppend           = "append"
	operationSale             = "sale"
	operationRecharge         = "recharge"
	operationDeleteEntry      = "delete_entry"
	operationRecomputeBalance = "recompute_balance"
	operationOpenSession      = "open_session"
	operationCloseSession     = "close_session"
	operationDeleteSession    = "delete_session"
	operationDeleteUser       = "delete_user"
	operationDeleteItem       = "delete_item"
	operationRegisterUser     = "register_user"

	operationStatusOK    = "ok"
	operationStatusError = "error"

	// DefaultEntryPageSize bounds unpaginated entry listings.
	DefaultEntryPageSize = 50
)
