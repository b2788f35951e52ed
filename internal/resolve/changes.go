package resolve

import (
	"reflect"

	"composer/internal/domain"
)

// changedProps marks every prop whose value differs between the last
// resolved snapshot and the current props, including props added or
// removed. Before the first resolution every current prop counts as changed.
func changedProps(last, current domain.Props, resolved bool) map[string]bool {
	changed := make(map[string]bool, len(current))
	if !resolved {
		for k := range current {
			changed[k] = true
		}
		return changed
	}
	for k, v := range current {
		if old, ok := last[k]; !ok || !reflect.DeepEqual(old, v) {
			changed[k] = true
		}
	}
	for k := range last {
		if _, ok := current[k]; !ok {
			changed[k] = true
		}
	}
	return changed
}
