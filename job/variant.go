package job

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/xraph/jobq"
)

// Variant is a typed job payload. Each recognized queue name has exactly
// one Variant type; the set is sealed to this package so that a payload
// and its queue name can never disagree.
type Variant interface {
	// QueueName returns the queue this payload is enqueued to.
	QueueName() QueueName

	variant()
}

// MCQImport asks a worker to import an uploaded multiple-choice question
// file.
type MCQImport struct {
	FileID     string `json:"fileId"`
	UploadedBy string `json:"uploadedBy,omitempty"`
	Overwrite  bool   `json:"overwrite,omitempty"`
}

// QueueName implements Variant.
func (MCQImport) QueueName() QueueName { return QueueMCQImport }

func (MCQImport) variant() {}

// Encode serializes v for storage and returns its queue name.
func Encode(v Variant) (QueueName, []byte, error) {
	if v == nil {
		return "", nil, fmt.Errorf("%w: nil variant", jobq.ErrSerialization)
	}
	data, err := json.Marshal(v)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %s: %w", jobq.ErrSerialization, v.QueueName(), err)
	}
	return v.QueueName(), data, nil
}

// Decode parses a stored payload into the Variant registered for q.
// Unknown fields are rejected so that a malformed payload fails here
// rather than inside a handler.
func Decode(q QueueName, data []byte) (Variant, error) {
	switch q {
	case QueueMCQImport:
		v, err := decodeInto[MCQImport](q, data)
		if err != nil {
			return nil, err
		}
		return v, nil
	}
	return nil, fmt.Errorf("%w: %q", jobq.ErrInvalidQueueName, q)
}

// DecodeAs parses a stored payload into T.
func DecodeAs[T Variant](data []byte) (T, error) {
	var zero T
	return decodeInto[T](zero.QueueName(), data)
}

func decodeInto[T Variant](q QueueName, data []byte) (T, error) {
	var v T
	if len(bytes.TrimSpace(data)) == 0 {
		return v, fmt.Errorf("%w: %s: empty payload", jobq.ErrSerialization, q)
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&v); err != nil {
		return v, fmt.Errorf("%w: %s: %w", jobq.ErrSerialization, q, err)
	}
	return v, nil
}
