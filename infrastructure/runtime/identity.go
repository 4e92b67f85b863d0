package runtime

import (
	"os"
	"strings"
	"sync"
)

var (
	strictIdentityModeOnce  sync.Once
	strictIdentityModeValue bool
)

// ResetStrictIdentityModeCache resets the cached strict identity mode value.
// This should only be used in tests.
func ResetStrictIdentityModeCache() {
	strictIdentityModeOnce = sync.Once{}
	strictIdentityModeValue = false
}

// StrictIdentityMode returns true when the process should fail closed on
// transport-security boundaries — e.g. refuse plaintext coordinator base URLs.
//
// Production always runs strict. LRA_STRICT_TRANSPORT can force it on outside
// production for staging environments fronted by TLS-terminating infrastructure.
func StrictIdentityMode() bool {
	strictIdentityModeOnce.Do(func() {
		forced := strings.TrimSpace(os.Getenv("LRA_STRICT_TRANSPORT"))
		strictIdentityModeValue = Env() == Production || ParseBoolValue(forced)
	})
	return strictIdentityModeValue
}
