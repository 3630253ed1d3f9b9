// Copyright 2026 The LUCI Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package model implements tagged JSON persistence.
//
// Every persisted object is a JSON object carrying its type name under
// TypeFlag, so that values stored behind an interface (e.g. verification
// statuses) can be decoded back into their concrete type.
package model

import (
	"bytes"
	"encoding/json"
	"os"
	"sync"

	"go.chromium.org/luci/common/errors"
)

// TypeFlag is the key holding the type name of a persisted object.
const TypeFlag = "__persistent_type__"

// Persistent is implemented by every type that can be saved.
type Persistent interface {
	// PersistentType returns the stable name stored under TypeFlag.
	PersistentType() string
}

var registry = struct {
	sync.RWMutex
	factories map[string]func() Persistent
}{factories: map[string]func() Persistent{}}

// Register makes a type decodable by Decode.
//
// Panics if the name is already registered. Meant to be called from init().
func Register(name string, factory func() Persistent) {
	registry.Lock()
	defer registry.Unlock()
	if _, ok := registry.factories[name]; ok {
		panic(errors.Reason("persistent type %q registered twice", name).Err())
	}
	registry.factories[name] = factory
}

// Tag marshals v, which must encode to a JSON object, and adds typ under
// TypeFlag.
//
// Types implementing json.Marshaler with Tag must pass a method-less alias
// of themselves to avoid recursion.
func Tag(typ string, v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, errors.Annotate(err, "%s does not encode to an object", typ).Err()
	}
	if fields == nil {
		fields = map[string]json.RawMessage{}
	}
	name, err := json.Marshal(typ)
	if err != nil {
		return nil, err
	}
	fields[TypeFlag] = name
	// Map keys are emitted sorted.
	return json.Marshal(fields)
}

// Marshal encodes v with its type tag.
func Marshal(v Persistent) ([]byte, error) {
	return Tag(v.PersistentType(), v)
}

// TypeOf returns the type name stored in an encoded object.
func TypeOf(data []byte) (string, error) {
	var head map[string]json.RawMessage
	if err := json.Unmarshal(data, &head); err != nil {
		return "", errors.Annotate(err, "not a persisted object").Err()
	}
	raw, ok := head[TypeFlag]
	if !ok {
		return "", errors.Reason("missing %s", TypeFlag).Err()
	}
	var typ string
	if err := json.Unmarshal(raw, &typ); err != nil {
		return "", errors.Annotate(err, "bad %s", TypeFlag).Err()
	}
	return typ, nil
}

// Decode instantiates the registered type named in data and fills it.
func Decode(data []byte) (Persistent, error) {
	typ, err := TypeOf(data)
	if err != nil {
		return nil, err
	}
	registry.RLock()
	factory := registry.factories[typ]
	registry.RUnlock()
	if factory == nil {
		return nil, errors.Reason("couldn't find type %s", typ).Err()
	}
	v := factory()
	if err := json.Unmarshal(data, v); err != nil {
		return nil, errors.Annotate(err, "decoding %s", typ).Err()
	}
	return v, nil
}

// DecodeInto fills v, checking that data was saved from the same type.
func DecodeInto(data []byte, v Persistent) error {
	typ, err := TypeOf(data)
	if err != nil {
		return err
	}
	if typ != v.PersistentType() {
		return errors.Reason("expected %s, got %s", v.PersistentType(), typ).Err()
	}
	return errors.Annotate(json.Unmarshal(data, v), "decoding %s", typ).Err()
}

// Save writes v to path as indented JSON.
//
// An existing file is first renamed to path+".old" so the previous state
// survives a partial write.
func Save(path string, v Persistent) error {
	raw, err := Marshal(v)
	if err != nil {
		return errors.Annotate(err, "encoding %s", v.PersistentType()).Err()
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return errors.Annotate(err, "indenting").Err()
	}
	buf.WriteByte('\n')

	if _, err := os.Stat(path); err == nil {
		if err := os.Rename(path, path+".old"); err != nil {
			return errors.Annotate(err, "backing up %s", path).Err()
		}
	}
	return errors.Annotate(os.WriteFile(path, buf.Bytes(), 0644), "writing %s", path).Err()
}

// Load reads a file written by Save into v.
func Load(path string, v Persistent) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Annotate(err, "reading %s", path).Err()
	}
	return errors.Annotate(DecodeInto(data, v), "loading %s", path).Err()
}
