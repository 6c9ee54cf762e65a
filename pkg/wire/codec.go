package wire

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrParse is returned for frames that are not valid protocol messages.
var ErrParse = errors.New("malformed message")

// envelope is the JSON layout of a frame.
type envelope struct {
	SID      *int64          `json:"sID"`
	MsgID    *int64          `json:"msgID"`
	Resource string          `json:"resource"`
	Version  *int            `json:"version"`
	Action   Action          `json:"action"`
	Data     json.RawMessage `json:"data,omitempty"`
	Code     *int            `json:"code,omitempty"`
}

// ParseMessage decodes a text frame. Numbers inside data are decoded as
// json.Number so integer values keep their precision.
func ParseMessage(text string) (*Message, error) {
	var env envelope
	if err := json.Unmarshal([]byte(text), &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}
	if env.Resource == "" {
		return nil, fmt.Errorf("%w: missing resource", ErrParse)
	}
	if env.Action == "" {
		return nil, fmt.Errorf("%w: missing action", ErrParse)
	}

	data, err := decodeData(env.Data)
	if err != nil {
		return nil, err
	}

	return &Message{
		SID:      env.SID,
		MsgID:    env.MsgID,
		Resource: env.Resource,
		Version:  env.Version,
		Action:   env.Action,
		Data:     data,
		Code:     env.Code,
	}, nil
}

func decodeData(raw json.RawMessage) ([]map[string]any, error) {
	if len(raw) == 0 {
		return nil, nil
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("%w: data: %v", ErrParse, err)
	}

	switch d := v.(type) {
	case nil:
		return nil, nil
	case map[string]any:
		return []map[string]any{d}, nil
	case []any:
		items := make([]map[string]any, 0, len(d))
		for i, item := range d {
			obj, ok := item.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("%w: data[%d] is %T, want object", ErrParse, i, item)
			}
			items = append(items, obj)
		}
		return items, nil
	default:
		return nil, fmt.Errorf("%w: data is %T, want list", ErrParse, v)
	}
}

// Dump encodes the message as a text frame.
func (m *Message) Dump() (string, error) {
	env := envelope{
		SID:      m.SID,
		MsgID:    m.MsgID,
		Resource: m.Resource,
		Version:  m.Version,
		Action:   m.Action,
		Code:     m.Code,
	}
	if m.Data != nil {
		data, err := json.Marshal(m.Data)
		if err != nil {
			return "", fmt.Errorf("failed to encode data: %w", err)
		}
		env.Data = data
	}

	out, err := json.Marshal(env)
	if err != nil {
		return "", fmt.Errorf("failed to encode message: %w", err)
	}
	return string(out), nil
}
