package featureflags

import (
	"os"
	"strings"
)

// Flag names understood by the service
const (
	Registration    = "registration"
	DashboardStream = "dashboard_stream"
)

// Flags is an immutable snapshot of feature toggles
type Flags map[string]bool

// Defaults lists every known flag with its value when unset
func Defaults() map[string]bool {
	return map[string]bool{
		Registration:    true,
		DashboardStream: true,
	}
}

// FromEnv resolves each default from FLAG_<NAME>=true/1/yes/on or
// false/0/no/off (case-insensitive). Other values keep the default.
func FromEnv(defaults map[string]bool) Flags {
	flags := make(Flags, len(defaults))
	for name, def := range defaults {
		flags[name] = parse(os.Getenv("FLAG_"+strings.ToUpper(name)), def)
	}
	return flags
}

// Enabled returns true if a flag is on. Unknown flags are off.
func (f Flags) Enabled(name string) bool {
	return f[name]
}

func parse(v string, def bool) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return def
	}
}
