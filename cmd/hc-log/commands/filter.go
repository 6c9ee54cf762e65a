package commands

import (
	"fmt"

	"github.com/chris-mc1/homeconnect-ws-sim/pkg/log"
)

// RunFilter copies the matching events of path into a new capture file at
// output and returns how many were written.
func RunFilter(path string, filter log.Filter, output string) (int, error) {
	logger, err := log.NewFileLogger(output)
	if err != nil {
		return 0, fmt.Errorf("create output file: %w", err)
	}

	count := 0
	err = each(path, filter, func(event log.Event) error {
		logger.Log(event)
		count++
		return nil
	})
	if cerr := logger.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("close output file: %w", cerr)
	}
	if err != nil {
		return count, err
	}
	if n := logger.Dropped(); n > 0 {
		return count - n, fmt.Errorf("%d events could not be written", n)
	}
	return count, nil
}
