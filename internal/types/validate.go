package types

import (
	"errors"
	"fmt"
)

// ErrInvalidData rejects a batch before anything is written.
var ErrInvalidData = errors.New("invalid session data")

// Validate checks an incoming batch against the schema: the metadata patch
// must carry the required client descriptors (timestamp, userAgent, url), and
// every event needs a type. Unknown event types pass validation; they are
// stored as-is and skipped at render time.
func Validate(events []Event, patch MetadataPatch) error {
	if patch.Timestamp == 0 {
		return fmt.Errorf("%w: metadata.timestamp missing", ErrInvalidData)
	}
	if patch.UserAgent == "" {
		return fmt.Errorf("%w: metadata.userAgent missing", ErrInvalidData)
	}
	if patch.URL == "" {
		return fmt.Errorf("%w: metadata.url missing", ErrInvalidData)
	}
	for i, e := range events {
		if e.Type == "" {
			return fmt.Errorf("%w: event %d has no type", ErrInvalidData, i)
		}
		if e.Timestamp < 0 {
			return fmt.Errorf("%w: event %d has negative timestamp", ErrInvalidData, i)
		}
	}
	return nil
}
