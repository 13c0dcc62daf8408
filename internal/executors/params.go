package executors

import "encoding/json"

// Param helpers shared by the executor files.

func stringParam(m map[string]any, key, defaultVal string) string {
	v, ok := m[key]
	if !ok {
		return defaultVal
	}
	s, ok := v.(string)
	if !ok {
		return defaultVal
	}
	return s
}

func intParam(m map[string]any, key string, defaultVal int) int {
	v, ok := m[key]
	if !ok {
		return defaultVal
	}
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return defaultVal
		}
		return int(i)
	default:
		return defaultVal
	}
}

func mapParam(m map[string]any, key string) map[string]any {
	v, ok := m[key]
	if !ok {
		return nil
	}
	mm, ok := v.(map[string]any)
	if !ok {
		return nil
	}
	return mm
}

// scopeData builds the evaluation environment shared by condition, action,
// and parse executors.
func scopeData(in ExecInput) map[string]any {
	data := map[string]any{
		"inputs":   in.Inputs,
		"trigger":  in.Trigger,
		"business": in.Business,
	}
	if data["inputs"] == nil {
		data["inputs"] = map[string]any{}
	}
	if data["trigger"] == nil {
		data["trigger"] = map[string]any{}
	}
	if data["business"] == nil {
		data["business"] = map[string]any{}
	}
	return data
}
