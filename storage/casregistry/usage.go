package casregistry

// Usage restricts which programs should accept a given backend.
//
// Backends are linked at build time: a backend registers itself via init(),
// and is enabled in a binary by importing the backend package (often as a blank import).
type Usage uint8

const (
	// UsageCLI marks backends available to the dagstore CLI.
	UsageCLI Usage = 1 << iota
	// UsageDaemon marks backends available to the dagstored block daemon.
	UsageDaemon
)

func (u Usage) allows(want Usage) bool { return u&want != 0 }
