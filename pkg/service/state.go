package service

import (
	"github.com/chris-mc1/homeconnect-ws-sim/pkg/model"
)

// stateKeys are the dump fields that SetState accepts back.
var stateKeys = []string{"value_raw", "access", "available", "min", "max", "step"}

// stateRecords returns one SetState record per entity holding any state.
// Unset fields are left out so that restoring a record never clears them.
func stateRecords(a *model.Appliance) []map[string]any {
	var out []map[string]any
	for _, e := range a.Entities() {
		dump := e.Dump()
		rec := map[string]any{"uid": e.UID()}
		for _, key := range stateKeys {
			if v, ok := dump[key]; ok && v != nil {
				rec[key] = v
			}
		}
		if len(rec) > 1 {
			out = append(out, rec)
		}
	}
	return out
}
