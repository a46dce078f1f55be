package plugin

// PluginState tracks a descriptor through resolution.
type PluginState int

const (
	StateUnvisited PluginState = iota // Not reached yet
	StateVisiting                     // On the current DFS path
	StateResolved                     // Ordered and initialized
	StateFailed                       // Init or validation failed
)

// String returns a human-readable state name.
func (s PluginState) String() string {
	switch s {
	case StateUnvisited:
		return "unvisited"
	case StateVisiting:
		return "visiting"
	case StateResolved:
		return "resolved"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// IsTerminal returns true if the state cannot transition further.
func (s PluginState) IsTerminal() bool {
	return s == StateResolved || s == StateFailed
}
