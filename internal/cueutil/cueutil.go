// SPDX-License-Identifier: MPL-2.0

// Package cueutil decodes user-authored CUE files against embedded schemas.
//
// Decoding compiles the schema, unifies the user's file with one of its
// definitions, validates the result and decodes it into a Go value. Failures
// come back as *ValidationError with one Issue per offending field.
package cueutil

import (
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

// DefaultMaxFileSize bounds the size of files accepted for decoding.
const DefaultMaxFileSize int64 = 1 << 20

type (
	// Option configures Decode.
	Option func(*options)

	options struct {
		maxFileSize int64
		concrete    bool
		filename    string
	}
)

// WithMaxFileSize sets the largest input accepted.
func WithMaxFileSize(n int64) Option {
	return func(o *options) { o.maxFileSize = n }
}

// WithConcrete sets whether every value must be concrete after unification.
// It defaults to true. Without it, fields left non-concrete are omitted from
// the decoded value.
func WithConcrete(concrete bool) Option {
	return func(o *options) { o.concrete = concrete }
}

// WithFilename names the input in error messages.
func WithFilename(name string) Option {
	return func(o *options) { o.filename = name }
}

// Decode validates data against the definition def of schema and decodes it
// into a T.
func Decode[T any](schema, data []byte, def string, opts ...Option) (T, error) {
	var zero T
	o := options{maxFileSize: DefaultMaxFileSize, concrete: true, filename: "<input>"}
	for _, opt := range opts {
		opt(&o)
	}
	if err := CheckFileSize(data, o.maxFileSize, o.filename); err != nil {
		return zero, err
	}

	ctx := cuecontext.New()
	schemaValue := ctx.CompileBytes(schema, cue.Filename("schema.cue"))
	if err := schemaValue.Err(); err != nil {
		return zero, fmt.Errorf("compile schema: %w", err)
	}
	root := schemaValue.LookupPath(cue.ParsePath(def))
	if err := root.Err(); err != nil {
		return zero, fmt.Errorf("schema definition %s: %w", def, err)
	}

	user := ctx.CompileBytes(data, cue.Filename(o.filename))
	if err := user.Err(); err != nil {
		return zero, FormatError(err, o.filename)
	}

	unified := root.Unify(user)
	var validateOpts []cue.Option
	if o.concrete {
		validateOpts = append(validateOpts, cue.Concrete(true))
	}
	if err := unified.Validate(validateOpts...); err != nil {
		return zero, FormatError(err, o.filename)
	}

	decoded := unified
	if !o.concrete {
		fields, _ := concreteFields(unified)
		decoded = ctx.Encode(fields)
	}
	var out T
	if err := decoded.Decode(&out); err != nil {
		return zero, FormatError(err, o.filename)
	}
	return out, nil
}

// concreteFields returns the concrete part of v as plain Go values. Struct
// fields that are not concrete are left out; a list with any non-concrete
// element is left out whole.
func concreteFields(v cue.Value) (any, bool) {
	v, _ = v.Default()
	switch v.IncompleteKind() {
	case cue.StructKind:
		it, err := v.Fields()
		if err != nil {
			return nil, false
		}
		m := make(map[string]any)
		for it.Next() {
			if x, ok := concreteFields(it.Value()); ok {
				m[it.Selector().Unquoted()] = x
			}
		}
		return m, true
	case cue.ListKind:
		it, err := v.List()
		if err != nil {
			return nil, false
		}
		xs := []any{}
		for it.Next() {
			x, ok := concreteFields(it.Value())
			if !ok {
				return nil, false
			}
			xs = append(xs, x)
		}
		return xs, true
	}
	if !v.IsConcrete() {
		return nil, false
	}
	var x any
	if err := v.Decode(&x); err != nil {
		return nil, false
	}
	return x, true
}

// CheckFileSize returns an error when data is larger than maxSize.
func CheckFileSize(data []byte, maxSize int64, filename string) error {
	if int64(len(data)) > maxSize {
		return fmt.Errorf("%s: file size %d bytes exceeds maximum %d bytes", filename, len(data), maxSize)
	}
	return nil
}
