/*
Package randx provides functions for generating unique identifiers.

Message ids, connection ids, service instance ids and broker correlation ids are all UUIDs;
instance ids additionally carry a short host-derived prefix to make logs easier to read.
*/
package randx

import (
	"os"
	"strings"

	"github.com/google/uuid"
)

// MessageID generates a standard UUID v4 string to serve as a unique identifier for a message.
func MessageID() string {
	return uuid.New().String()
}

// ConnectionID generates the identifier of one socket connection.
func ConnectionID() string {
	return uuid.New().String()
}

// CorrelationID generates the id that pairs a broker request with its reply.
func CorrelationID() string {
	return uuid.New().String()
}

// InstanceID generates the identifier of this running service instance.
// It is "<hostname>-<8 hex chars>", falling back to "instance" when the hostname is unavailable.
func InstanceID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "instance"
	}
	host = strings.ReplaceAll(strings.ToLower(host), ".", "-")

	return host + "-" + uuid.New().String()[:8]
}

// IsValidUUID reports whether s is a well-formed UUID.
func IsValidUUID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}
