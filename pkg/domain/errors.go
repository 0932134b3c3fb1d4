package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrStaging is matched by every *StagingError.
	ErrStaging = errors.New("staging failed")

	// ErrUnsupportedMode is matched by every *UnsupportedModeError.
	ErrUnsupportedMode = errors.New("unsupported execution mode")

	// ErrArtifactNotProduced is matched by every *ArtifactNotProducedError.
	ErrArtifactNotProduced = errors.New("artifact not produced")

	// ErrUnknownPort is matched by every *UnknownPortError.
	ErrUnknownPort = errors.New("unknown port")

	// ErrRunNotFound is returned when a run ID cannot be found in the store.
	ErrRunNotFound = errors.New("run not found")
)

// StagingError reports a required input that is missing or a destination that cannot be written.
type StagingError struct {
	Op   string // "validate", "mkdir" or "copy"
	Path string
	Err  error
}

func (e *StagingError) Error() string {
	return fmt.Sprintf("staging %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *StagingError) Unwrap() error { return e.Err }

func (e *StagingError) Is(target error) bool { return target == ErrStaging }

// UnsupportedModeError reports a pre-command that matches no known container engine.
type UnsupportedModeError struct {
	PreCommand string
}

func (e *UnsupportedModeError) Error() string {
	return fmt.Sprintf("pre_command %q must contain either docker or singularity", e.PreCommand)
}

func (e *UnsupportedModeError) Is(target error) bool { return target == ErrUnsupportedMode }

// ArtifactNotProducedError is the terminal failure of a stage whose tool never produced its outputs.
type ArtifactNotProducedError struct {
	Stage    string
	Attempts int
	Missing  []string
}

func (e *ArtifactNotProducedError) Error() string {
	return fmt.Sprintf("stage %s: artifacts not produced after %d attempts: %s",
		e.Stage, e.Attempts, strings.Join(e.Missing, ", "))
}

func (e *ArtifactNotProducedError) Is(target error) bool { return target == ErrArtifactNotProduced }

// PortDirection tells whether a port is read or written by a node.
type PortDirection string

const (
	PortIn  PortDirection = "input"
	PortOut PortDirection = "output"
)

// UnknownPortError reports an edge that references an undeclared port.
type UnknownPortError struct {
	Node      string
	Port      string
	Direction PortDirection
	Known     []string
}

func (e *UnknownPortError) Error() string {
	return fmt.Sprintf("node %q has no %s %q (declared: %s)",
		e.Node, e.Direction, e.Port, strings.Join(e.Known, ", "))
}

func (e *UnknownPortError) Is(target error) bool { return target == ErrUnknownPort }
