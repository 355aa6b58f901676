package cache

import (
	"bytes"
	"fmt"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// entry is the wire format of every cached value. Payload is the msgpack
// encoding of the result, keyed by its json field names.
type entry struct {
	Schema     string             `json:"schema"`
	Key        string             `json:"key"`
	CreatedAt  time.Time          `json:"created_at"`
	TTLSeconds int64              `json:"ttl_seconds"`
	Payload    msgpack.RawMessage `json:"payload"`
}

func (e *entry) expired(now time.Time) bool {
	return !now.Before(e.CreatedAt.Add(time.Duration(e.TTLSeconds) * time.Second))
}

func marshal(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetCustomStructTag("json")
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func unmarshal(data []byte, v interface{}) error {
	dec := msgpack.NewDecoder(bytes.NewReader(data))
	dec.SetCustomStructTag("json")
	return dec.Decode(v)
}

func encodeEntry(schema, key string, value interface{}, createdAt time.Time, ttl time.Duration) ([]byte, error) {
	payload, err := marshal(value)
	if err != nil {
		return nil, fmt.Errorf("failed to encode payload: %w", err)
	}
	return marshal(&entry{
		Schema:     schema,
		Key:        key,
		CreatedAt:  createdAt.UTC(),
		TTLSeconds: int64((ttl + time.Second - 1) / time.Second),
		Payload:    payload,
	})
}

// decodeEntry validates the envelope and decodes its payload into dest
func decodeEntry(data []byte, schema, key string, now time.Time, dest interface{}) error {
	var e entry
	if err := unmarshal(data, &e); err != nil {
		return fmt.Errorf("failed to decode envelope: %w", err)
	}
	if e.Schema != schema {
		return fmt.Errorf("schema mismatch: have %q, want %q", e.Schema, schema)
	}
	if e.Key != key {
		return fmt.Errorf("key mismatch: entry holds %q", e.Key)
	}
	if e.expired(now) {
		return errExpired
	}
	if err := unmarshal(e.Payload, dest); err != nil {
		return fmt.Errorf("failed to decode payload: %w", err)
	}
	return nil
}
