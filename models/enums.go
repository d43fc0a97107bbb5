package models

const (
	MarketplaceProviderBol = "bol"
)

const (
	InstanceStateDraft        = "draft"
	InstanceStateConnected    = "connected"
	InstanceStateError        = "error"
	InstanceStateDisconnected = "disconnected"
)

const (
	QueueTypeUnshipped = "unshipped"
	QueueTypeShipped   = "shipped"
)

const (
	QueueStateDraft   = "draft"
	QueueStatePartial = "partial"
	QueueStateDone    = "done"
	QueueStateFailed  = "failed"
)

const (
	QueueLineStateDraft  = "draft"
	QueueLineStateFailed = "failed"
	QueueLineStateDone   = "done"
	QueueLineStateCancel = "cancel"
)

const (
	FulfilmentByFBR  = "FBR"
	FulfilmentByFBB  = "FBB"
	FulfilmentByBoth = "Both"
)

const (
	StockExportTypeFix        = "fix"
	StockExportTypePercentage = "percentage"
)

const (
	SalesOrderStateDraft     = "draft"
	SalesOrderStateConfirmed = "confirmed"
	SalesOrderStateShipped   = "shipped"
	SalesOrderStateCancelled = "cancelled"
)

const (
	ActivityNoteQueueEscalation = "queue_escalation"
)

const (
	SyncTriggeredManual = "manual"
	SyncTriggeredRetry  = "retry"
	SyncTriggeredSystem = "system"
)
