package types

import (
	"fmt"

	"github.com/oklog/ulid/v2"
)

// GenerateUUID returns a k-sortable unique identifier.
func GenerateUUID() string {
	return ulid.Make().String()
}

// GenerateUUIDWithPrefix returns a k-sortable unique identifier with a
// prefix, e.g. "req_01ARZ3NDEKTSV4RRFFQ69G5FAV".
func GenerateUUIDWithPrefix(prefix string) string {
	if prefix == "" {
		return GenerateUUID()
	}
	return fmt.Sprintf("%s_%s", prefix, GenerateUUID())
}

const (
	UUID_PREFIX_REQUEST = "req"
	UUID_PREFIX_BATCH   = "batch"
	UUID_PREFIX_TICKET  = "ticket"
)
