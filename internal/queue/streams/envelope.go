// Package streams carries index tasks over Redis Streams consumer groups.
package streams

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Envelope is the wire wrapper persisted under the "envelope" field of each stream entry.
type Envelope struct {
	EventID        string          `json:"event_id"`
	EventType      string          `json:"event_type"`
	OccurredAt     time.Time       `json:"occurred_at"`
	Attempt        int             `json:"attempt"`
	PayloadVersion string          `json:"payload_version"`
	Data           json.RawMessage `json:"data"`
}

// NewEnvelope wraps payload as a fresh event of eventType.
func NewEnvelope(eventType, version string, attempt int, payload interface{}) (Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	return Envelope{
		EventID:        uuid.NewString(),
		EventType:      eventType,
		OccurredAt:     time.Now().UTC(),
		Attempt:        attempt,
		PayloadVersion: version,
		Data:           data,
	}, nil
}

// Validate reports every missing mandatory field at once.
func (e Envelope) Validate() error {
	var errs []error
	if e.EventID == "" {
		errs = append(errs, errors.New("event_id is required"))
	}
	if e.EventType == "" {
		errs = append(errs, errors.New("event_type is required"))
	}
	if e.PayloadVersion == "" {
		errs = append(errs, errors.New("payload_version is required"))
	}
	if e.Attempt < 0 {
		errs = append(errs, errors.New("attempt must be >= 0"))
	}
	if len(e.Data) == 0 {
		errs = append(errs, errors.New("data payload is required"))
	}
	return errors.Join(errs...)
}

// Marshal stamps a missing occurrence time and encodes a valid envelope.
func (e *Envelope) Marshal() ([]byte, error) {
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now().UTC()
	}
	if err := e.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(e)
}

// Decode unmarshals the payload into out.
func (e Envelope) Decode(out interface{}) error {
	if err := json.Unmarshal(e.Data, out); err != nil {
		return fmt.Errorf("decode %s payload: %w", e.EventType, err)
	}
	return nil
}

func UnmarshalEnvelope(b []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return env, fmt.Errorf("unmarshal envelope: %w", err)
	}
	return env, env.Validate()
}
