package registry

import "github.com/backkem/lwm2m/pkg/tlv"

// Reader populates r with the resource's current value. r arrives
// initialized with the resource's kind, type and ID.
type Reader interface {
	Read(r *tlv.Record) error
}

// Writer consumes a value. r has already been decoded as the resource's
// declared type.
type Writer interface {
	Write(r *tlv.Record) error
}

// Validator is optionally implemented by a Writer. Validate checks a value
// without applying it. Every record of a write is validated before any
// Writer runs.
type Validator interface {
	Validate(r *tlv.Record) error
}

// Executor triggers the resource's action. args holds the raw execute
// arguments as an opaque value, possibly empty.
type Executor interface {
	Execute(args *tlv.Record) error
}

// ReadFunc adapts a function to Reader.
type ReadFunc func(r *tlv.Record) error

// Read calls f(r).
func (f ReadFunc) Read(r *tlv.Record) error { return f(r) }

// WriteFunc adapts a function to Writer.
type WriteFunc func(r *tlv.Record) error

// Write calls f(r).
func (f WriteFunc) Write(r *tlv.Record) error { return f(r) }

// CheckedWriter is a Writer with a validation step.
type CheckedWriter struct {
	Check func(r *tlv.Record) error
	Apply func(r *tlv.Record) error
}

// Validate calls Check, if set.
func (w CheckedWriter) Validate(r *tlv.Record) error {
	if w.Check == nil {
		return nil
	}
	return w.Check(r)
}

// Write validates r and applies it.
func (w CheckedWriter) Write(r *tlv.Record) error {
	if err := w.Validate(r); err != nil {
		return err
	}
	return w.Apply(r)
}

// ExecuteFunc adapts a function to Executor.
type ExecuteFunc func(args *tlv.Record) error

// Execute calls f(args).
func (f ExecuteFunc) Execute(args *tlv.Record) error { return f(args) }

// Handlers groups the operations bound to one resource. A Handlers value
// passed to Bind binds its non-nil fields.
type Handlers struct {
	Read    Reader
	Write   Writer
	Execute Executor
}

// handlersOf collects every capability h implements.
func handlersOf(h any) (Handlers, bool) {
	var out Handlers
	if hs, ok := h.(Handlers); ok {
		return hs, hs.Read != nil || hs.Write != nil || hs.Execute != nil
	}
	if r, ok := h.(Reader); ok {
		out.Read = r
	}
	if w, ok := h.(Writer); ok {
		out.Write = w
	}
	if e, ok := h.(Executor); ok {
		out.Execute = e
	}
	return out, out.Read != nil || out.Write != nil || out.Execute != nil
}
