// Package httpkv implements the storage contract (storage.Backend) as a
// reference remote key-value service: an HTTP server exposing an
// underlying storage.Backend over the wire with github.com/gorilla/mux,
// and a client implementing storage.Backend against that server. It
// exists so qcache can run with its cache split from its callers by a
// network hop, grounded on the teacher codebase's own API layer
// (src/api/*_handler.go + src/main.go's router wiring).
package httpkv

import (
	"encoding/json"

	"github.com/arqcache/qcache/entry"
	"github.com/arqcache/qcache/tagpath"
)

type wireEntry struct {
	Value      json.RawMessage `json:"value"`
	Tags       []string        `json:"tags"`
	CreatedAt  int64           `json:"created_at"`
	ExpiresAt  int64           `json:"expires_at"`
	GraceUntil *int64          `json:"grace_until,omitempty"`
}

func encodeEntry(e entry.Entry) (wireEntry, error) {
	value, err := json.Marshal(e.Value)
	if err != nil {
		return wireEntry{}, err
	}
	tags := make([]string, len(e.Tags))
	for i, t := range e.Tags {
		tags[i] = tagpath.Serialize(t)
	}
	return wireEntry{
		Value:      value,
		Tags:       tags,
		CreatedAt:  e.CreatedAt,
		ExpiresAt:  e.ExpiresAt,
		GraceUntil: e.GraceUntil,
	}, nil
}

func decodeEntry(w wireEntry) (entry.Entry, error) {
	var value any
	if err := json.Unmarshal(w.Value, &value); err != nil {
		return entry.Entry{}, err
	}
	tags := make([]tagpath.Path, len(w.Tags))
	for i, s := range w.Tags {
		tags[i] = tagpath.Deserialize(s)
	}
	return entry.Entry{
		Value:      value,
		Tags:       tags,
		CreatedAt:  w.CreatedAt,
		ExpiresAt:  w.ExpiresAt,
		GraceUntil: w.GraceUntil,
	}, nil
}

// tagTimestamp is the wire body for PUT /v1/tags/{tag}.
type tagTimestamp struct {
	Timestamp int64 `json:"timestamp"`
}

// verificationBody is the wire body for POST /v1/verify, matching
// storage.VerificationReport field-for-field.
type verificationBody struct {
	Key        string `json:"key"`
	IsStale    bool   `json:"isStale"`
	CachedHash string `json:"cachedHash"`
	FreshHash  string `json:"freshHash"`
	Timestamp  int64  `json:"timestamp"`
}
