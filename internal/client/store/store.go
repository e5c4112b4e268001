// Package store provides the device-local persistence layer for
// cryptographic material. All binary values cross the storage boundary
// as tagged records, so any backend that can hold the record type can
// serve as a session store.
package store

import (
	"encoding/base64"
	"errors"
	"fmt"
)

var (
	ErrNotFound = errors.New("record not found")
	ErrStorage  = errors.New("storage failure")
)

const (
	KindBytes = "bytes"
	KindInt   = "int"
)

// Record is the tagged union written to backends. Binary material is
// base64-encoded so backends never see raw binary assumptions.
type Record struct {
	Kind  string `json:"kind"`
	Data  string `json:"data,omitempty"`
	Value int64  `json:"value,omitempty"`
}

func BytesRecord(b []byte) Record {
	return Record{Kind: KindBytes, Data: base64.StdEncoding.EncodeToString(b)}
}

func IntRecord(v int64) Record {
	return Record{Kind: KindInt, Value: v}
}

func (r Record) Bytes() ([]byte, error) {
	if r.Kind != KindBytes {
		return nil, fmt.Errorf("record kind %q is not %q", r.Kind, KindBytes)
	}
	b, err := base64.StdEncoding.DecodeString(r.Data)
	if err != nil {
		return nil, fmt.Errorf("decode record data: %w", err)
	}
	return b, nil
}

func (r Record) Int() (int64, error) {
	if r.Kind != KindInt {
		return 0, fmt.Errorf("record kind %q is not %q", r.Kind, KindInt)
	}
	return r.Value, nil
}

// Store is a namespaced key-value backend. Implementations must return
// ErrNotFound for missing keys and wrap any backend fault in
// ErrStorage.
type Store interface {
	Get(namespace, key string) (Record, error)
	Put(namespace, key string, rec Record) error
	Delete(namespace, key string) error
	List(namespace string) (map[string]Record, error)
}
