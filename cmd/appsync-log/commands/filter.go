package commands

import (
	"fmt"
	"io"

	"github.com/jdfoster/appsync-realtime-util/pkg/log"
)

// RunFilter copies the events matching filter to a new log file and
// returns how many were written.
func RunFilter(path, output string, filter log.Filter) (int, error) {
	reader, err := log.NewFilteredReader(path, filter)
	if err != nil {
		return 0, fmt.Errorf("failed to open log file: %w", err)
	}
	defer reader.Close()

	logger, err := log.NewFileLogger(output)
	if err != nil {
		return 0, fmt.Errorf("failed to create output logger: %w", err)
	}

	count := 0
	for {
		event, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			_ = logger.Close()
			return count, fmt.Errorf("failed to read event: %w", err)
		}
		logger.Log(event)
		count++
	}

	if err := logger.Close(); err != nil {
		return count, fmt.Errorf("failed to close output: %w", err)
	}
	return count, nil
}
