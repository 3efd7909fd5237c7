package message

import (
	"fmt"

	"github.com/kon-rad/rudder-analytics-go/document"
)

// ParseType maps a kind name such as "track" to its Type.
func ParseType(name string) (Type, error) {
	for _, t := range Types {
		if string(t) == name {
			return t, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownType, name)
}

// Decode parses data as an event of kind t. Numbers inside documents are
// kept as json.Number.
func Decode(t Type, data []byte) (Message, error) {
	switch t {
	case TypeIdentify:
		return decodeAs[Identify](data)
	case TypeTrack:
		return decodeAs[Track](data)
	case TypePage:
		return decodeAs[Page](data)
	case TypeScreen:
		return decodeAs[Screen](data)
	case TypeGroup:
		return decodeAs[Group](data)
	case TypeAlias:
		return decodeAs[Alias](data)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, t)
	}
}

// DecodeTagged parses a JSON object whose "type" field names its kind, the
// shape used for members of a batch.
func DecodeTagged(data []byte) (Message, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := document.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("decode message type: %w", err)
	}
	t, err := ParseType(head.Type)
	if err != nil {
		return nil, err
	}
	return Decode(t, data)
}

func decodeAs[T Message](data []byte) (Message, error) {
	var m T
	if err := document.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode %s: %w", m.Type(), err)
	}
	return m, nil
}
