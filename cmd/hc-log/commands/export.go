package commands

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/chris-mc1/homeconnect-ws-sim/pkg/log"
)

// RunExport writes the matching events of path to w as "jsonl" or "csv".
func RunExport(path string, filter log.Filter, format string, w io.Writer) error {
	switch format {
	case "jsonl":
		enc := json.NewEncoder(w)
		return each(path, filter, func(event log.Event) error {
			if err := enc.Encode(event); err != nil {
				return fmt.Errorf("encode event: %w", err)
			}
			return nil
		})
	case "csv":
		return exportCSV(path, filter, w)
	}
	return fmt.Errorf("unknown format %q (jsonl or csv)", format)
}

var csvHeader = []string{
	"timestamp", "session_id", "appliance_id", "direction", "layer", "category",
	"type", "resource", "msg_id", "code",
}

func exportCSV(path string, filter log.Filter, w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	err := each(path, filter, func(event log.Event) error {
		var resource, msgID, code string
		if m := event.Message; m != nil {
			resource = m.Resource
			if m.MsgID != nil {
				msgID = strconv.FormatInt(*m.MsgID, 10)
			}
			if m.Code != nil {
				code = strconv.Itoa(*m.Code)
			}
		}
		return cw.Write([]string{
			event.Timestamp.UTC().Format(timestampLayout),
			event.SessionID,
			event.ApplianceID,
			event.Direction.String(),
			event.Layer.String(),
			event.Category.String(),
			eventType(event),
			resource,
			msgID,
			code,
		})
	})
	cw.Flush()
	if err != nil {
		return err
	}
	return cw.Error()
}
