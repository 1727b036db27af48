package config

import (
	"strings"

	"github.com/mohae/deepcopy"
)

const redactedValue = "********"

var secretKeyMarkers = []string{"password", "passphrase", "token", "secret"}

func isSecretKey(key string) bool {
	k := strings.ToLower(key)
	for _, marker := range secretKeyMarkers {
		if strings.Contains(k, marker) {
			return true
		}
	}
	return false
}

// RedactOptions returns a deep copy of options with secret values masked at
// any nesting depth.
func RedactOptions(options map[string]interface{}) map[string]interface{} {
	if options == nil {
		return nil
	}
	out := make(map[string]interface{}, len(options))
	for k, v := range options {
		if isSecretKey(k) {
			out[k] = redactedValue
			continue
		}
		out[k] = redactValue(v)
	}
	return out
}

func redactValue(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		return RedactOptions(val)
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = redactValue(item)
		}
		return out
	default:
		return deepcopy.Copy(val)
	}
}

func redactBlocks(blocks PluginBlocks) PluginBlocks {
	if blocks == nil {
		return nil
	}
	out := make(PluginBlocks, len(blocks))
	for i, b := range blocks {
		out[i] = PluginConfig{Type: b.Type, Name: b.Name, Options: RedactOptions(b.Options)}
	}
	return out
}
