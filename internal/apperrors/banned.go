package apperrors

const bannedMessage = "submission rejected"

// BannedError reports that an identity is blocked. MatchedType records which
// dimension hit for audit purposes only; it is never part of the public
// message.
type BannedError struct {
	MatchedType string
}

func (e *BannedError) Error() string {
	return "identity banned (" + e.MatchedType + ")"
}

func (e *BannedError) Unwrap() error {
	return &AppError{Code: CodeBanned, Message: bannedMessage}
}

func Banned(matchedType string) error {
	return &BannedError{MatchedType: matchedType}
}
