package utils

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ToInt converts various types to int. Unparseable input yields 0.
func ToInt(val any) int {
	switch v := val.(type) {
	case int:
		return v
	case int64:
		return int(v)
	case int32:
		return int(v)
	case uint:
		return int(v)
	case uint64:
		return int(v)
	case uint32:
		return int(v)
	case float64:
		return int(v)
	case float32:
		return int(v)
	case bool:
		if v {
			return 1
		}
		return 0
	case string:
		i, _ := strconv.Atoi(strings.TrimSpace(v))
		return i
	case []byte:
		i, _ := strconv.Atoi(strings.TrimSpace(string(v)))
		return i
	default:
		i, _ := strconv.Atoi(fmt.Sprintf("%v", v))
		return i
	}
}

// ToString converts various types to string.
func ToString(val any) string {
	switch v := val.(type) {
	case nil:
		return ""
	case string:
		return v
	case []byte:
		return string(v)
	default:
		return fmt.Sprintf("%v", v)
	}
}

// ToBool converts various types to bool.
// Numbers are true when non-zero; strings accept "1", "true", "yes" and "on".
func ToBool(val any) bool {
	switch v := val.(type) {
	case bool:
		return v
	case int, int64, int32, uint, uint64, uint32, float64, float32:
		return ToInt(v) != 0
	case string, []byte:
		switch strings.ToLower(strings.TrimSpace(ToString(v))) {
		case "1", "true", "yes", "on":
			return true
		}
		return false
	default:
		return false
	}
}

// ParseIDList parses a comma separated list of positive ids such as "2, 3,4".
// Empty elements are skipped and duplicates keep their first position. Invalid
// elements are dropped; the valid ids are returned together with an error naming
// every dropped element.
func ParseIDList(s string) ([]int, error) {
	var (
		ids  []int
		errs []error
	)
	seen := make(map[int]struct{})
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.Atoi(part)
		if err != nil {
			errs = append(errs, fmt.Errorf("invalid id %q in list %q", part, s))
			continue
		}
		if id <= 0 {
			errs = append(errs, fmt.Errorf("id must be positive, got %d in list %q", id, s))
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids, errors.Join(errs...)
}
