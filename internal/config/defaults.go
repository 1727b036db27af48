package config

const (
	// DefaultInventoryPath is used when neither the arguments nor the poller
	// section name an inventory file.
	DefaultInventoryPath = "suzieq/config/etc/inventory.yaml"

	DefaultUpdatePeriod     = 3600
	DefaultInventoryTimeout = 10
	DefaultPeriod           = 15
	DefaultWorkers          = 1
	DefaultLoggingLevel     = "WARNING"

	// DefaultPluginType is the chunker and manager type used when none is set.
	DefaultPluginType = "static"

	DefaultWebhookTimeout = 60
)

// firstNonZero returns the first non-zero value.
func firstNonZero(values ...int) int {
	for _, v := range values {
		if v != 0 {
			return v
		}
	}
	return 0
}

// firstNonEmpty returns the first non-empty string.
func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
