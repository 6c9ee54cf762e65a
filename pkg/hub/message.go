package hub

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/chris-mc1/homeconnect-ws-sim/pkg/model"
)

// Admin actions.
const (
	ActionInit   = "init"
	ActionUpdate = "update"
	ActionSet    = "set"
	ActionError  = "error"
)

// Hub errors.
var (
	ErrNoAppliance = errors.New("no appliance loaded")
	ErrBadRequest  = errors.New("malformed admin request")
)

// Message is an outbound admin message.
type Message struct {
	Action   string           `json:"action"`
	Entities []map[string]any `json:"entities,omitempty"`
	Entity   map[string]any   `json:"entity,omitempty"`
	Error    string           `json:"error,omitempty"`
}

// InitMessage lists every entity of a.
func InitMessage(a *model.Appliance) Message {
	entities := make([]map[string]any, 0)
	for _, e := range a.Entities() {
		entities = append(entities, e.Dump())
	}
	return Message{Action: ActionInit, Entities: entities}
}

// UpdateMessage carries the dump of one entity.
func UpdateMessage(e *model.Entity) Message {
	return Message{Action: ActionUpdate, Entity: e.Dump()}
}

// SetRequest is an inbound edit of one entity field.
type SetRequest struct {
	UID   int64
	Key   string
	Value any
}

// request is the decoded form of any inbound frame.
type request struct {
	Action string
	Set    SetRequest
}

func parseRequest(text string) (request, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(text)))
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return request{}, fmt.Errorf("%w: %v", ErrBadRequest, err)
	}

	action, _ := raw["action"].(string)
	req := request{Action: action}
	if action != ActionSet {
		return req, nil
	}

	uid, ok := model.ToInt64(raw["uid"])
	if s, isString := raw["uid"].(string); isString {
		n, err := strconv.ParseInt(s, 10, 64)
		uid, ok = n, err == nil
	}
	if !ok {
		return request{}, fmt.Errorf("%w: uid %v", ErrBadRequest, raw["uid"])
	}
	key, _ := raw["key"].(string)
	if key == "" {
		return request{}, fmt.Errorf("%w: missing key", ErrBadRequest)
	}
	req.Set = SetRequest{UID: uid, Key: key, Value: raw["value"]}
	return req, nil
}
