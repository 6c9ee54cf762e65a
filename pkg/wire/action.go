package wire

// Action is the semantic verb of a message.
type Action string

const (
	// ActionGet requests a resource.
	ActionGet Action = "GET"

	// ActionPost writes to a resource.
	ActionPost Action = "POST"

	// ActionNotify pushes an unsolicited update.
	ActionNotify Action = "NOTIFY"

	// ActionResponse answers a previous GET, POST or NOTIFY.
	ActionResponse Action = "RESPONSE"
)

// String returns the action name.
func (a Action) String() string {
	return string(a)
}

// IsValid returns true if the action is one of the four protocol actions.
func (a Action) IsValid() bool {
	switch a {
	case ActionGet, ActionPost, ActionNotify, ActionResponse:
		return true
	default:
		return false
	}
}
