package instance

import (
	"os"
	"strings"
)

const envInstanceID = "GIGMARKET_INSTANCE_ID"

// GetID identifies this process in logs: the configured id, else the hostname.
func GetID() string {
	if id := strings.TrimSpace(os.Getenv(envInstanceID)); id != "" {
		return id
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return "local"
}
