package schema

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/aretw0/fetpipe/pkg/domain"
)

func touch(t *testing.T, dir, name string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte("nii"), 0o644); err != nil {
		t.Fatalf("write %s: %v", p, err)
	}
	return p
}

func TestValidate_Success(t *testing.T) {
	dir := t.TempDir()
	schema := Schema{
		"T2":              File(),
		"stacks":          Files(),
		"out":             Dir(),
		"gestational_age": Float(),
		"threads":         Int(),
		"flag":            String(),
		"surface":         Bool(),
	}

	data := map[string]any{
		"T2":              touch(t, dir, "case01.nii.gz"),
		"stacks":          []string{touch(t, dir, "a.nii.gz"), touch(t, dir, "b.nii.gz")},
		"out":             dir,
		"gestational_age": 28.5,
		"threads":         4,
		"flag":            "-all",
		"surface":         true,
	}

	if err := Validate(schema, data); err != nil {
		t.Errorf("Validate() error = %v, want nil", err)
	}
}

func TestValidate_MissingField(t *testing.T) {
	schema := Schema{
		"flag":    String(),
		"threads": Int(),
	}

	err := Validate(schema, map[string]any{"flag": ""})
	if err == nil {
		t.Fatal("Validate() should return error for missing field")
	}

	aggr, ok := err.(*AggregateError)
	if !ok {
		t.Fatalf("error should be *AggregateError, got %T", err)
	}
	if len(aggr.Errors) != 1 {
		t.Fatalf("Validate() = %d errors, want 1", len(aggr.Errors))
	}

	validErr, ok := aggr.Errors[0].(*ValidationError)
	if !ok {
		t.Fatalf("error should be *ValidationError, got %T", aggr.Errors[0])
	}
	if validErr.Key != "threads" || validErr.Reason != "required" {
		t.Errorf("unexpected error %+v", validErr)
	}
}

func TestValidate_OptionalField(t *testing.T) {
	schema := Schema{
		"threads": Optional(Int()),
	}

	if err := Validate(schema, map[string]any{}); err != nil {
		t.Errorf("absent optional field should pass, got %v", err)
	}
	if err := Validate(schema, map[string]any{"threads": "four"}); err == nil {
		t.Error("present optional field should still be type-checked")
	}
}

func TestValidate_MissingFileIsStagingError(t *testing.T) {
	dir := t.TempDir()
	schema := Schema{
		"T2":     File(),
		"stacks": Files(),
	}

	data := map[string]any{
		"T2":     filepath.Join(dir, "missing.nii.gz"),
		"stacks": []string{touch(t, dir, "a.nii.gz"), filepath.Join(dir, "gone.nii.gz")},
	}

	err := Validate(schema, data)
	if err == nil {
		t.Fatal("expected error for missing files")
	}
	if !errors.Is(err, domain.ErrStaging) {
		t.Errorf("expected errors.Is(err, ErrStaging), got %v", err)
	}
	if n := len(ValidationErrors(err)); n != 2 {
		t.Errorf("expected 2 validation errors, got %d", n)
	}
}

func TestValidate_FileIsNotDir(t *testing.T) {
	dir := t.TempDir()
	err := Validate(Schema{"out": Dir()}, map[string]any{"out": touch(t, dir, "x.nii.gz")})
	if !errors.Is(err, domain.ErrStaging) {
		t.Errorf("expected staging error for file passed as dir, got %v", err)
	}
}

func TestValidate_EmptySliceRejected(t *testing.T) {
	err := Validate(Schema{"stacks": Files()}, map[string]any{"stacks": []string{}})
	if err == nil {
		t.Error("expected error for empty stack list")
	}
}

func TestValidate_PathsAcceptsSingleFileOrList(t *testing.T) {
	dir := t.TempDir()
	one := touch(t, dir, "a.nii.gz")
	two := touch(t, dir, "b.nii.gz")

	if err := Validate(Schema{"in": Paths()}, map[string]any{"in": one}); err != nil {
		t.Errorf("single file: %v", err)
	}
	if err := Validate(Schema{"in": Paths()}, map[string]any{"in": []string{one, two}}); err != nil {
		t.Errorf("file list: %v", err)
	}
	if err := Validate(Schema{"in": Paths()}, map[string]any{"in": 3}); err == nil {
		t.Error("expected error for a scalar")
	}
}
