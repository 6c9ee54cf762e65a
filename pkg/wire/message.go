package wire

// Response codes used by the simulator.
const (
	// CodeNotFound answers requests for resources the appliance does not serve.
	CodeNotFound = 404
)

// Message is a single protocol frame.
type Message struct {
	SID      *int64
	MsgID    *int64
	Resource string
	Version  *int
	Action   Action
	Data     []map[string]any
	Code     *int
}

// NewMessage creates an unstamped message.
func NewMessage(resource string, action Action, data ...map[string]any) *Message {
	return &Message{
		Resource: resource,
		Action:   action,
		Data:     data,
	}
}

// Service returns the two-character service prefix of the resource
// ("/ro/values" -> "ro"), or "" for resources too short to carry one.
func (m *Message) Service() string {
	if len(m.Resource) < 3 {
		return ""
	}
	return m.Resource[1:3]
}

// Respond builds the RESPONSE correlated with m. sID, msgID, resource and
// version are copied from m.
func (m *Message) Respond(data []map[string]any) *Message {
	return &Message{
		SID:      copyPtr(m.SID),
		MsgID:    copyPtr(m.MsgID),
		Resource: m.Resource,
		Version:  copyPtr(m.Version),
		Action:   ActionResponse,
		Data:     data,
	}
}

// RespondCode builds an empty RESPONSE to m carrying code.
func (m *Message) RespondCode(code int) *Message {
	resp := m.Respond(nil)
	resp.Code = &code
	return resp
}

// Clone returns a copy of m that can be stamped independently. Data entries
// are shared and must be treated as read-only.
func (m *Message) Clone() *Message {
	c := &Message{
		SID:      copyPtr(m.SID),
		MsgID:    copyPtr(m.MsgID),
		Resource: m.Resource,
		Version:  copyPtr(m.Version),
		Action:   m.Action,
		Code:     copyPtr(m.Code),
	}
	if m.Data != nil {
		c.Data = make([]map[string]any, len(m.Data))
		copy(c.Data, m.Data)
	}
	return c
}

// HasCode reports whether the message carries the given response code.
func (m *Message) HasCode(code int) bool {
	return m.Code != nil && *m.Code == code
}

func copyPtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
