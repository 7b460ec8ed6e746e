package domain

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// HeaderServiceIDs is broker header carrying destination service ids.
const HeaderServiceIDs = "service_ids"

// Envelope is header metadata attached to one broker message.
// Params: ordered destination service ids.
// Returns: routing metadata consumed by router.
type Envelope struct {
	ServiceIDs []int
}

// EncodeServiceIDs renders service ids as header value.
// Params: ordered service ids.
// Returns: JSON array string (e.g. "[1,2]").
func EncodeServiceIDs(ids []int) string {
	if ids == nil {
		ids = []int{}
	}
	encoded, err := json.Marshal(ids)
	if err != nil {
		return "[]"
	}
	return string(encoded)
}

// DecodeServiceIDs parses header values into ordered service ids.
// Params: all header values for service_ids; JSON arrays or comma-separated integers.
// Returns: ids in header order or parse error for malformed values.
func DecodeServiceIDs(values []string) ([]int, error) {
	ids := make([]int, 0, len(values))
	for _, raw := range values {
		value := strings.TrimSpace(raw)
		if value == "" {
			continue
		}
		if strings.HasPrefix(value, "[") {
			var decoded []int
			if err := json.Unmarshal([]byte(value), &decoded); err != nil {
				return nil, fmt.Errorf("decode %s header: %w", HeaderServiceIDs, err)
			}
			ids = append(ids, decoded...)
			continue
		}
		for _, part := range strings.Split(value, ",") {
			token := strings.TrimSpace(part)
			if token == "" {
				continue
			}
			id, err := strconv.Atoi(token)
			if err != nil {
				return nil, fmt.Errorf("decode %s header: %q is not an integer", HeaderServiceIDs, token)
			}
			ids = append(ids, id)
		}
	}
	return ids, nil
}
