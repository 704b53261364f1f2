package models

import (
	"net/mail"
	"strings"

	"github.com/HFI-UC/UtiOpia-sub001/internal/apperrors"
)

const (
	MinPassphraseLength = 6
	// bcrypt ignores everything past 72 bytes
	MaxPassphraseLength = 72
)

// AnonymousIdentity is embedded in a message posted without an account.
// PassphraseHash is a bcrypt digest; the plaintext never leaves the request.
type AnonymousIdentity struct {
	Email          string `json:"email,omitempty" db:"anon_email"`
	StudentID      string `json:"student_id,omitempty" db:"anon_student_id"`
	PassphraseHash string `json:"-" db:"anon_passphrase_hash"`
}

// NormalizeEmail reduces an address to its lower-cased addr-spec so bans and
// submissions compare equal regardless of how the user typed it. Display
// names and angle brackets are stripped; unparseable input is only trimmed
// and lower-cased so validation can still reject it.
func NormalizeEmail(email string) string {
	email = strings.TrimSpace(email)
	if addr, err := mail.ParseAddress(email); err == nil {
		email = addr.Address
	}
	return strings.ToLower(email)
}

func NormalizeStudentID(id string) string {
	return strings.TrimSpace(id)
}

// ValidateAnonymous checks the anonymous half of a submission.
func ValidateAnonymous(email, studentID, passphrase string) error {
	if email == "" && studentID == "" {
		return apperrors.Invalid("email or student_id is required for anonymous posts")
	}
	if email != "" {
		if _, err := mail.ParseAddress(email); err != nil {
			return apperrors.Invalid("invalid email")
		}
	}
	if len(studentID) > 64 {
		return apperrors.Invalid("student_id is too long")
	}
	return ValidatePassphrase(passphrase)
}

func ValidatePassphrase(passphrase string) error {
	if len(passphrase) < MinPassphraseLength {
		return apperrors.Invalid("passphrase is too short")
	}
	if len(passphrase) > MaxPassphraseLength {
		return apperrors.Invalid("passphrase is too long")
	}
	return nil
}
