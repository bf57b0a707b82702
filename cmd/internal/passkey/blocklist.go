package passkey

import "fmt"

const zeroAAGUID = "00000000-0000-0000-0000-000000000000"

// blockedAAGUIDs lists known virtual/emulator authenticators. These get
// through attestation checks but prove nothing about humanness.
var blockedAAGUIDs = map[string]struct{}{
	zeroAAGUID:                             {}, // Chrome DevTools virtual authenticator / no AAGUID
	"01020304-0506-0708-0102-030405060708": {}, // softtoken (Firefox WebAuthn emulator)
	"6028b017-b1d4-4c02-b4b3-afcdafc96bb2": {}, // Windows Hello software emulator
	"309956ce-203b-4561-aeb7-1a9e745c4c7d": {}, // VirtualFIDO
}

// formatAAGUID renders a 16-byte AAGUID in canonical UUID form. Any
// other length yields "".
func formatAAGUID(b []byte) string {
	if len(b) != 16 {
		return ""
	}
	return fmt.Sprintf("%x-%x-%x-%x-%x", b[0:4], b[4:6], b[6:8], b[8:10], b[10:16])
}

// blockedAuthenticator reports whether a registration must be refused.
func blockedAuthenticator(aaguid []byte, attestationFormat string) bool {
	id := formatAAGUID(aaguid)
	if id == "" {
		return false
	}
	if _, ok := blockedAAGUIDs[id]; ok {
		return true
	}
	// All-zero AAGUID plus no attestation is almost certainly an
	// emulator, even when the blocklist entry above is edited away.
	return id == zeroAAGUID && attestationFormat == "none"
}
