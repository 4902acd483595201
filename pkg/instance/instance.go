package instance

import (
	"os"

	"github.com/angelmondragon/marketplace-settlement/pkg/env"
)

// EnvInstanceID overrides the detected process identity.
const EnvInstanceID = "SETTLE_INSTANCE_ID"

// ID names this process in logs: the explicit override, the platform dyno
// name, or the hostname, falling back to "local".
func ID() string {
	if id, ok := env.First(EnvInstanceID, "DYNO"); ok {
		return id
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return "local"
}
