package stages

import (
	"context"

	"github.com/aretw0/fetpipe/pkg/adapters/process"
	"github.com/aretw0/fetpipe/pkg/domain"
	"github.com/aretw0/fetpipe/pkg/schema"
	"github.com/aretw0/fetpipe/pkg/staging"
)

// NiftyMIC port names.
const (
	BrainExtractionInput  = "raw_T2s"
	BrainExtractionOutput = "bmasks"
	ReconInputStacks      = domain.PortStacks
	ReconInputMasks       = "masks"
	ReconOutputFiles      = domain.PortReconFiles
	ReconOutputMask       = "recon_mask"
)

var brainExtractionContract = staging.Contract{
	Tool: "niftymic_segment_fetal_brains",
	Inputs: []staging.Placement{
		{Port: BrainExtractionInput, Template: "raw/{name}"},
	},
	Outputs: []staging.Artifact{
		{Name: BrainExtractionOutput, Template: "masks/{stem}_mask.nii.gz", Each: BrainExtractionInput},
	},
}

// BrainExtraction computes one brain mask per raw stack (MONAIfbs through NiftyMIC).
type BrainExtraction struct {
	Container
}

func (s *BrainExtraction) Name() string { return "brain_extraction" }

func (s *BrainExtraction) Ports() Ports {
	return Ports{
		Inputs:  schema.Schema{BrainExtractionInput: schema.Paths()},
		Outputs: brainExtractionContract.OutputNames(),
	}
}

func (s *BrainExtraction) Execute(ctx context.Context, in domain.Inputs) (domain.Outputs, error) {
	return runContainer(ctx, s.Name(), s.Container, s.Ports().Inputs, in, invocation{
		contract:   brainExtractionContract,
		entrypoint: []string{"niftymic_segment_fetal_brains"},
		threads:    s.Threads,
		args: func(a *staging.Area) ([]process.Token, error) {
			masks, err := outputTokens(a, BrainExtractionOutput)
			if err != nil {
				return nil, err
			}
			args := []process.Token{process.Flag("--filenames")}
			args = append(args, inputTokens(a, in, BrainExtractionInput, "raw/{name}")...)
			args = append(args, process.Flag("--filenames-masks"))
			return append(args, masks...), nil
		},
	})
}

var reconContract = staging.Contract{
	Tool: "niftymic_run_reconstruction_pipeline",
	Inputs: []staging.Placement{
		{Port: ReconInputStacks, Template: "stacks/{name}"},
		{Port: ReconInputMasks, Template: "masks/{name}"},
	},
	Outputs: []staging.Artifact{
		{Name: ReconOutputFiles, Template: "srr/recon_template_space/srr_template.nii.gz"},
		{Name: ReconOutputMask, Template: "srr/recon_template_space/srr_template_mask.nii.gz"},
	},
}

// Reconstruction runs the NiftyMIC super-resolution reconstruction pipeline.
type Reconstruction struct {
	Container
}

func (s *Reconstruction) Name() string { return "recon" }

func (s *Reconstruction) Ports() Ports {
	return Ports{
		Inputs: schema.Schema{
			ReconInputStacks: schema.Paths(),
			ReconInputMasks:  schema.Paths(),
		},
		Outputs: reconContract.OutputNames(),
	}
}

func (s *Reconstruction) Execute(ctx context.Context, in domain.Inputs) (domain.Outputs, error) {
	return runContainer(ctx, s.Name(), s.Container, s.Ports().Inputs, in, invocation{
		contract:   reconContract,
		entrypoint: []string{"niftymic_run_reconstruction_pipeline"},
		threads:    s.Threads,
		args: func(a *staging.Area) ([]process.Token, error) {
			args := []process.Token{process.Flag("--filenames")}
			args = append(args, inputTokens(a, in, ReconInputStacks, "stacks/{name}")...)
			args = append(args, process.Flag("--filenames-masks"))
			args = append(args, inputTokens(a, in, ReconInputMasks, "masks/{name}")...)
			return append(args, process.Flag("--dir-output"), process.Staged("srr")), nil
		},
	})
}
