package types

const (
	maxUserIDLength  = 64
	maxContentLength = 4096
)

// IsValidUserID checks user id shape: non-empty, bounded, no whitespace.
func IsValidUserID(id string) bool {
	if id == "" || len(id) > maxUserIDLength {
		return false
	}
	for _, r := range id {
		if r == ' ' || r == '\t' || r == '\n' || r == '\r' {
			return false
		}
	}
	return true
}

// IsValidMessageType reports whether t is one of the known message types.
func IsValidMessageType(t string) bool {
	switch t {
	case MessageTypeText, MessageTypeImage, MessageTypeOther:
		return true
	}
	return false
}

// ValidateContent rejects empty or oversized message bodies before any
// persistence happens.
func ValidateContent(content string) error {
	if content == "" {
		return ErrEmptyContent
	}
	if len(content) > maxContentLength {
		return ErrContentTooLong
	}
	return nil
}
