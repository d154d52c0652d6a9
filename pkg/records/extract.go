package records

import (
	"errors"
	"fmt"

	jsoniter "github.com/json-iterator/go"
)

var (
	// ErrMalformedLine marks a line that is not a valid JSON document.
	ErrMalformedLine = errors.New("malformed json line")
	// ErrMissingField marks a JSON line without a string payload field.
	ErrMissingField = errors.New("missing payload field")
)

// Extractor turns one raw line into the record text. Returning an error skips
// the line; it never aborts the stream.
type Extractor func(line []byte) (string, error)

// Raw keeps each line verbatim.
func Raw(line []byte) (string, error) {
	return string(line), nil
}

// JSONField extracts the string field name from a JSON object line.
func JSONField(name string) Extractor {
	return func(line []byte) (string, error) {
		if !jsoniter.Valid(line) {
			return "", ErrMalformedLine
		}

		value := jsoniter.Get(line, name)
		if value.ValueType() != jsoniter.StringValue {
			return "", fmt.Errorf("%w: %q", ErrMissingField, name)
		}

		return value.ToString(), nil
	}
}
