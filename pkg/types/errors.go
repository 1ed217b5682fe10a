package types

import (
	"errors"
	"fmt"
)

// Category identifies which of the six error classes a failure belongs to.
type Category string

const (
	// CategorySchema covers invalid or inconsistent type definitions
	// (OTD/RTD/ED), and operations on undefined types.
	CategorySchema Category = "schema"

	// CategoryInstance covers failures writing, reading, or deleting
	// object/relation/embedding instances.
	CategoryInstance Category = "instance"

	// CategoryDatabase covers failures opening, migrating, or querying a
	// substrate (relational, vector, or graph).
	CategoryDatabase Category = "database"

	// CategoryEmbedding covers failures generating or comparing vectors.
	CategoryEmbedding Category = "embedding"

	// CategoryConfiguration covers invalid configuration or filesystem
	// layout problems (unwritable path, bad config file).
	CategoryConfiguration Category = "configuration"

	// CategoryValidation covers malformed caller input that never reached
	// a substrate (bad property type, missing required field).
	CategoryValidation Category = "validation"
)

// Error is the common shape of every error category. Category identifies
// which of the six classes the failure belongs to; Err is the underlying
// cause, if any.
type Error struct {
	Category Category
	Op       string
	Err      error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("grizabella: %s: %s", e.Category, e.Op)
	}
	return fmt.Sprintf("grizabella: %s: %s: %v", e.Category, e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func newErr(cat Category, op string, err error) *Error {
	return &Error{Category: cat, Op: op, Err: err}
}

// SchemaError reports an invalid or inconsistent type definition, or a
// reference to an undefined OTD/RTD/ED.
func SchemaError(op string, err error) *Error { return newErr(CategorySchema, op, err) }

// InstanceError reports a failure writing, reading, or deleting an
// instance.
func InstanceError(op string, err error) *Error { return newErr(CategoryInstance, op, err) }

// DatabaseError reports a failure at the substrate layer (open, migrate,
// query).
func DatabaseError(op string, err error) *Error { return newErr(CategoryDatabase, op, err) }

// EmbeddingError reports a failure generating or comparing a vector.
func EmbeddingError(op string, err error) *Error { return newErr(CategoryEmbedding, op, err) }

// ConfigurationError reports an invalid configuration or filesystem layout
// problem.
func ConfigurationError(op string, err error) *Error { return newErr(CategoryConfiguration, op, err) }

// ValidationError reports malformed caller input rejected before it ever
// reached a substrate.
func ValidationError(op string, err error) *Error { return newErr(CategoryValidation, op, err) }

// Is reports whether err is a *Error of the given category, unwrapping as
// needed.
func Is(err error, cat Category) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Category == cat
}
