package schema

import (
	"fmt"
	"os"
	"reflect"

	"github.com/aretw0/fetpipe/pkg/domain"
)

// Type defines the contract for field validation.
type Type interface {
	// Name returns the human-readable name of the type (e.g., "string", "file").
	Name() string
	// Validate checks if a value conforms to this type.
	Validate(value any) error
}

// StringType validates string values.
type StringType struct{}

func (t *StringType) Name() string { return "string" }

func (t *StringType) Validate(value any) error {
	if _, ok := value.(string); !ok {
		return fmt.Errorf("expected string, got %T", value)
	}
	return nil
}

// IntType validates integer values.
type IntType struct{}

func (t *IntType) Name() string { return "int" }

func (t *IntType) Validate(value any) error {
	switch v := value.(type) {
	case int, int8, int16, int32, int64:
		return nil
	case float64:
		// Accept floats that are whole numbers (from JSON unmarshaling)
		if v == float64(int64(v)) {
			return nil
		}
		return fmt.Errorf("expected int, got float (not a whole number)")
	default:
		return fmt.Errorf("expected int, got %T", value)
	}
}

// FloatType validates floating-point values.
type FloatType struct{}

func (t *FloatType) Name() string { return "float" }

func (t *FloatType) Validate(value any) error {
	switch value.(type) {
	case float32, float64, int, int8, int16, int32, int64:
		return nil
	default:
		return fmt.Errorf("expected float, got %T", value)
	}
}

// BoolType validates boolean values.
type BoolType struct{}

func (t *BoolType) Name() string { return "bool" }

func (t *BoolType) Validate(value any) error {
	if _, ok := value.(bool); !ok {
		return fmt.Errorf("expected bool, got %T", value)
	}
	return nil
}

// SliceType validates slices of a specific element type.
type SliceType struct {
	elemType Type
}

func (t *SliceType) Name() string {
	return fmt.Sprintf("[%s]", t.elemType.Name())
}

func (t *SliceType) Validate(value any) error {
	rv := reflect.ValueOf(value)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return fmt.Errorf("expected slice, got %T", value)
	}
	if rv.Len() == 0 {
		return fmt.Errorf("expected at least one element")
	}
	for i := 0; i < rv.Len(); i++ {
		if err := t.elemType.Validate(rv.Index(i).Interface()); err != nil {
			return fmt.Errorf("element %d: %w", i, err)
		}
	}
	return nil
}

// PathType validates a path that must exist on disk.
type PathType struct {
	dir bool
}

func (t *PathType) Name() string {
	if t.dir {
		return "dir"
	}
	return "file"
}

func (t *PathType) Validate(value any) error {
	p, ok := value.(string)
	if !ok {
		return fmt.Errorf("expected path, got %T", value)
	}
	info, err := os.Stat(p)
	if err != nil {
		return &domain.StagingError{Op: "validate", Path: p, Err: err}
	}
	if info.IsDir() != t.dir {
		return &domain.StagingError{Op: "validate", Path: p, Err: fmt.Errorf("not a %s", t.Name())}
	}
	return nil
}

// PathListType accepts a single existing file or a non-empty list of them.
type PathListType struct{}

func (t *PathListType) Name() string { return "files" }

func (t *PathListType) Validate(value any) error {
	if _, ok := value.(string); ok {
		return File().Validate(value)
	}
	return Files().Validate(value)
}

// OptionalType marks a field that may be absent. Present values are still validated.
type OptionalType struct {
	Type
}

func (t *OptionalType) Name() string { return t.Type.Name() + "?" }

// String creates a string type validator.
func String() Type { return &StringType{} }

// Int creates an integer type validator.
func Int() Type { return &IntType{} }

// Float creates a float type validator.
func Float() Type { return &FloatType{} }

// Bool creates a boolean type validator.
func Bool() Type { return &BoolType{} }

// Slice creates a slice type validator for elements of the given type.
func Slice(elemType Type) Type {
	return &SliceType{elemType: elemType}
}

// File requires an existing regular file.
func File() Type { return &PathType{} }

// Dir requires an existing directory.
func Dir() Type { return &PathType{dir: true} }

// Files requires a non-empty list of existing files.
func Files() Type { return Slice(File()) }

// Paths accepts one existing file or a non-empty list of existing files.
func Paths() Type { return &PathListType{} }

// Optional wraps t so that a missing field is not an error.
func Optional(t Type) Type { return &OptionalType{Type: t} }
