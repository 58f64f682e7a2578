package robincrypto

import (
	"time"

	"github.com/pquerna/otp/totp"
)

// MFACode generates the current TOTP code for an MFA-enrolled account.
// Endpoints gated behind MFA accept the code in the x-mfa-code header.
func MFACode(secret string) (string, error) {
	return totp.GenerateCode(secret, time.Now())
}
