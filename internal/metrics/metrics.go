package metrics

import "expvar"

var (
	OrdersPlaced    = expvar.NewInt("orders_placed")
	OrdersFilled    = expvar.NewInt("orders_filled")
	OrdersCancelled = expvar.NewInt("orders_cancelled")
	OrdersRejected  = expvar.NewInt("orders_rejected")
	AccountResets   = expvar.NewInt("account_resets")
	StorageErrors   = expvar.NewInt("storage_errors")
	EnginePanics    = expvar.NewInt("engine_panics")
	PendingFills    = expvar.NewInt("pending_fills")
)
