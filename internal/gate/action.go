package gate

// Action is the kind of operation a user attempts on a resource.
type Action string

const (
	ActionView   Action = "view"
	ActionList   Action = "list"
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
	// ActionSend covers outbound delivery: emailing invoices, WhatsApp messages.
	ActionSend Action = "send"
	// ActionManage covers business-wide settings.
	ActionManage Action = "manage"
)
