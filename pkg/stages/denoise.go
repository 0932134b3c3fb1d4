package stages

import (
	"context"
	"fmt"

	"github.com/aretw0/fetpipe/pkg/adapters/process"
	"github.com/aretw0/fetpipe/pkg/domain"
	"github.com/aretw0/fetpipe/pkg/schema"
	"github.com/aretw0/fetpipe/pkg/staging"
)

// Denoising port names.
const (
	DenoiseInput  = "input_image"
	DenoiseOutput = "output_image"
)

var denoiseContract = staging.Contract{
	Tool: "DenoiseImage",
	Inputs: []staging.Placement{
		{Port: DenoiseInput, Template: "input/{name}"},
	},
	Outputs: []staging.Artifact{
		{Name: DenoiseOutput, Template: "{stem}_noise_corrected.nii.gz", Each: DenoiseInput},
	},
}

// LocalFunc is an in-process routine that satisfies a stage without launching a tool.
type LocalFunc func(ctx context.Context, in domain.Inputs) (domain.Outputs, error)

// PassThrough forwards the input image unchanged.
func PassThrough(_ context.Context, in domain.Inputs) (domain.Outputs, error) {
	return domain.Outputs{DenoiseOutput: in.String(DenoiseInput)}, nil
}

// Denoise runs ANTs DenoiseImage on a single stack. ANTs is usually installed on the host,
// so a zero Container runs it directly; Local replaces the tool entirely.
type Denoise struct {
	Container
	// Dimension of the image (-d); defaults to 3.
	Dimension int
	Local     LocalFunc
}

func (s *Denoise) Name() string { return "denoising" }

func (s *Denoise) Ports() Ports {
	return Ports{
		Inputs:  schema.Schema{DenoiseInput: schema.File()},
		Outputs: denoiseContract.OutputNames(),
	}
}

func (s *Denoise) Execute(ctx context.Context, in domain.Inputs) (domain.Outputs, error) {
	if s.Local != nil {
		if err := schema.Validate(s.Ports().Inputs, in); err != nil {
			return nil, fmt.Errorf("%s: invalid inputs: %w", s.Name(), err)
		}
		return s.Local(ctx, in)
	}

	c := s.Container
	if c.PreCommand == "" {
		c.Mode = process.ModeDirect
	}
	dim := s.Dimension
	if dim <= 0 {
		dim = 3
	}

	out, err := runContainer(ctx, s.Name(), c, s.Ports().Inputs, in, invocation{
		contract:   denoiseContract,
		entrypoint: []string{"DenoiseImage"},
		threads:    s.Threads,
		args: func(a *staging.Area) ([]process.Token, error) {
			output, err := outputTokens(a, DenoiseOutput)
			if err != nil {
				return nil, err
			}
			args := []process.Token{process.Flag("-d"), process.Value(dim), process.Flag("-i")}
			args = append(args, inputTokens(a, in, DenoiseInput, "input/{name}")...)
			args = append(args, process.Flag("-o"))
			return append(args, output...), nil
		},
	})
	if err != nil {
		return nil, err
	}
	// One image in, one image out.
	if paths, ok := out[DenoiseOutput].([]string); ok && len(paths) == 1 {
		out[DenoiseOutput] = paths[0]
	}
	return out, nil
}
