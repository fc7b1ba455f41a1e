package utils

import (
	"os"
	"strings"
)

// EnvBool reads a boolean flag from the environment; unset keys return the
// default. Accepts 1/0, true/false, yes/no in any case.
func EnvBool(key string, def bool) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	switch v {
	case "":
		return def
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	}
	return def
}

// Superusers returns the configured admin user IDs.
func Superusers() map[string]bool {
	out := make(map[string]bool)
	for _, id := range strings.Split(os.Getenv("SUPERUSER_IDS"), ",") {
		id = strings.TrimSpace(id)
		if id != "" {
			out[id] = true
		}
	}
	return out
}

// IsSuperuser reports whether the user may run admin commands.
func IsSuperuser(userID string) bool {
	return Superusers()[userID]
}
