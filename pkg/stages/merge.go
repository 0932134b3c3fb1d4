package stages

import (
	"context"
	"fmt"

	"github.com/aretw0/fetpipe/pkg/domain"
	"github.com/aretw0/fetpipe/pkg/schema"
)

// MergeOutput is the flattened list produced by Merge.
const MergeOutput = "out"

// Merge flattens its inputs in1..inN, in order, into a single path list.
type Merge struct {
	N int
}

func (s *Merge) Name() string { return "merge" }

// MergeInput returns the name of the i-th (1-based) merge input.
func MergeInput(i int) string { return fmt.Sprintf("in%d", i) }

func (s *Merge) Ports() Ports {
	n := s.N
	if n < 1 {
		n = 1
	}
	in := make(schema.Schema, n)
	for i := 1; i <= n; i++ {
		in[MergeInput(i)] = schema.Optional(schema.Paths())
	}
	return Ports{Inputs: in, Outputs: []string{MergeOutput}}
}

func (s *Merge) Execute(_ context.Context, in domain.Inputs) (domain.Outputs, error) {
	ports := s.Ports()
	if err := schema.Validate(ports.Inputs, in); err != nil {
		return nil, fmt.Errorf("%s: invalid inputs: %w", s.Name(), err)
	}
	var out []string
	for i := 1; i <= len(ports.Inputs); i++ {
		out = append(out, in.Paths(MergeInput(i))...)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%s: nothing to merge", s.Name())
	}
	return domain.Outputs{MergeOutput: out}, nil
}
