package message

import "github.com/kon-rad/rudder-analytics-go/document"

// ReservedContextKeys are top-level context keys the library always writes
// itself; callers may not set them.
var ReservedContextKeys = []string{"library"}

// Validate checks msg without modifying it. Identity is checked first, then
// variant-required fields, then the caller context for reserved keys.
// A nil msg fails with ErrNilMessage.
func Validate(msg Message) error {
	if msg == nil {
		return &ValidationError{Rule: ErrNilMessage}
	}
	if err := checkIdentity(msg); err != nil {
		return err
	}
	if err := checkRequired(msg); err != nil {
		return err
	}
	if key, ok := ReservedKeyConflict(msg.Context()); ok {
		return &ValidationError{Type: msg.Type(), Rule: ErrReservedKeyword, Field: key}
	}
	return nil
}

// ReservedKeyConflict returns the first reserved key present at the top
// level of ctx.
func ReservedKeyConflict(ctx document.Document) (string, bool) {
	for _, key := range ReservedContextKeys {
		if ctx.HasKey(key) {
			return key, true
		}
	}
	return "", false
}

func checkIdentity(msg Message) error {
	if msg.Type() == TypeAlias {
		return nil
	}
	userID, anonymousID := msg.identity()
	if userID == "" && anonymousID == "" {
		return &ValidationError{Type: msg.Type(), Rule: ErrMissingIdentity}
	}
	return nil
}

func checkRequired(msg Message) error {
	missing := ""
	switch m := msg.(type) {
	case Track:
		if m.Event == "" {
			missing = "event"
		}
	case Page:
		if m.Name == "" {
			missing = "name"
		}
	case Screen:
		if m.Name == "" {
			missing = "name"
		}
	case Group:
		if m.GroupID == "" {
			missing = "groupId"
		}
	case Alias:
		if m.UserID == "" {
			missing = "userId"
		} else if m.PreviousID == "" {
			missing = "previousId"
		}
	}
	if missing != "" {
		return &ValidationError{Type: msg.Type(), Rule: ErrMissingField, Field: missing}
	}
	return nil
}
