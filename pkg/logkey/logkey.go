package logkey

// Shared attribute names for slog so log fields stay greppable across packages.
const (
	TraceID = "trace_id"
	ERROR   = "error"
	UserID  = "user_id"
	OrderID = "order_id"
)
