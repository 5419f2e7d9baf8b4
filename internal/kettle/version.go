package kettle

import (
	"strings"

	"github.com/rygwdn/CosoriKettleBLE/internal/protocol"
)

// Revision strings of the one firmware generation known to speak the legacy
// protocol. Everything else gets the current protocol.
const (
	legacyHardwareRev = "1.0.00"
	legacySoftwareRev = "R0007V0012"
)

// DetectVersion maps the device information revision strings to a protocol
// version. BLE characteristic reads often carry trailing NULs; both inputs
// are trimmed before comparison.
func DetectVersion(hardwareRev, softwareRev string) protocol.Version {
	hw := cleanRevision(hardwareRev)
	sw := cleanRevision(softwareRev)

	if hw == legacyHardwareRev && sw == legacySoftwareRev {
		return protocol.V0
	}
	return protocol.V1
}

func cleanRevision(s string) string {
	return strings.TrimSpace(strings.Trim(s, "\x00"))
}
