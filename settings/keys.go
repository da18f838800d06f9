package settings

// Reserved property keys understood by the engine.
const (
	// ResetDefaults staged among parameters reverts the block to its
	// default settings on the next apply.
	ResetDefaults = "reset_defaults"
	// StoreDefaults staged among parameters snapshots the active settings
	// as the new defaults after the next apply.
	StoreDefaults = "store_defaults"
)

// DefaultTags are the well-known stream-tag keys. A writable block field
// whose name matches one of them is auto-forwarded to downstream blocks.
var DefaultTags = []string{
	"sample_rate",
	"signal_name",
	"signal_unit",
	"signal_min",
	"signal_max",
	"trigger_name",
	"trigger_time",
	"trigger_offset",
	"context",
}

func isDefaultTag(name string) bool {
	for _, t := range DefaultTags {
		if t == name {
			return true
		}
	}
	return false
}
