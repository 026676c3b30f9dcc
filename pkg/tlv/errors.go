package tlv

import "errors"

var (
	// ErrTruncated is returned when a header or value runs past the input.
	ErrTruncated = errors.New("tlv: truncated record")

	// ErrValueTooLarge is returned when a value exceeds MaxValueLen.
	ErrValueTooLarge = errors.New("tlv: value exceeds maximum length")

	// ErrInvalidLength is returned when a value length does not fit its type.
	ErrInvalidLength = errors.New("tlv: invalid value length for type")

	// ErrInvalidKind is returned for an identifier kind outside the four defined kinds.
	ErrInvalidKind = errors.New("tlv: invalid identifier kind")

	// ErrInvalidType is returned when a record carries an unknown resource type.
	ErrInvalidType = errors.New("tlv: invalid resource type")

	// ErrInvalidBoolean is returned for a boolean value other than 0 or 1.
	ErrInvalidBoolean = errors.New("tlv: invalid boolean value")

	// ErrNotContainer is returned when Children is called on a leaf record.
	ErrNotContainer = errors.New("tlv: record is not a container")
)
