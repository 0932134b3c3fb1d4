package stages

import (
	"context"

	"github.com/aretw0/fetpipe/pkg/adapters/process"
	"github.com/aretw0/fetpipe/pkg/domain"
	"github.com/aretw0/fetpipe/pkg/schema"
	"github.com/aretw0/fetpipe/pkg/staging"
)

// NeSVoR port names.
const (
	NesvorInputStacks       = "input_stacks"
	NesvorInputStackMasks   = "stack_masks"
	NesvorInputSlices       = "input_slices"
	NesvorInputResolution   = "output_resolution"
	NesvorOutputStackMasks  = "output_stack_masks"
	NesvorOutputSlices      = "output_slices"
	NesvorOutputVolume      = domain.PortOutputVolume
	nesvorStackTemplate     = "stacks/{name}"
	nesvorStackMaskTemplate = "stack_masks/{name}"
)

var nesvorSegmentationContract = staging.Contract{
	Tool:   "nesvor segment-stack",
	Inputs: []staging.Placement{{Port: NesvorInputStacks, Template: nesvorStackTemplate}},
	Outputs: []staging.Artifact{
		{Name: NesvorOutputStackMasks, Template: "masks/{stem}_mask.nii.gz", Each: NesvorInputStacks},
	},
}

// NesvorSegmentation masks the fetal brain in every stack with NeSVoR.
type NesvorSegmentation struct {
	Container
	// NoAugmentation disables test-time augmentation of the segmentation network.
	NoAugmentation bool
}

func (s *NesvorSegmentation) Name() string { return "nesvor_segment_stack" }

func (s *NesvorSegmentation) Ports() Ports {
	return Ports{
		Inputs:  schema.Schema{NesvorInputStacks: schema.Paths()},
		Outputs: nesvorSegmentationContract.OutputNames(),
	}
}

func (s *NesvorSegmentation) Execute(ctx context.Context, in domain.Inputs) (domain.Outputs, error) {
	return runContainer(ctx, s.Name(), s.Container, s.Ports().Inputs, in, invocation{
		contract:   nesvorSegmentationContract,
		entrypoint: []string{"nesvor"},
		threads:    s.Threads,
		args: func(a *staging.Area) ([]process.Token, error) {
			masks, err := outputTokens(a, NesvorOutputStackMasks)
			if err != nil {
				return nil, err
			}
			args := []process.Token{process.Flag("segment-stack"), process.Flag("--input-stacks")}
			args = append(args, inputTokens(a, in, NesvorInputStacks, nesvorStackTemplate)...)
			args = append(args, process.Flag("--output-stack-masks"))
			args = append(args, masks...)
			if s.NoAugmentation {
				args = append(args, process.Flag("--no-augmentation-seg"))
			}
			return args, nil
		},
	})
}

var nesvorRegistrationContract = staging.Contract{
	Tool: "nesvor register",
	Inputs: []staging.Placement{
		{Port: NesvorInputStacks, Template: nesvorStackTemplate},
	},
	Outputs: []staging.Artifact{
		{Name: NesvorOutputSlices, Template: "slices", Dir: true},
	},
}

// NesvorRegistration registers the stacks' slices and writes them to a slices directory.
type NesvorRegistration struct {
	Container
}

func (s *NesvorRegistration) Name() string { return "nesvor_register" }

func (s *NesvorRegistration) Ports() Ports {
	return Ports{
		Inputs: schema.Schema{
			NesvorInputStacks:     schema.Paths(),
			NesvorInputStackMasks: schema.Optional(schema.Paths()),
		},
		Outputs: nesvorRegistrationContract.OutputNames(),
	}
}

func (s *NesvorRegistration) Execute(ctx context.Context, in domain.Inputs) (domain.Outputs, error) {
	contract := nesvorRegistrationContract
	withMasks := len(in.Paths(NesvorInputStackMasks)) > 0
	if withMasks {
		contract.Inputs = append([]staging.Placement{}, contract.Inputs...)
		contract.Inputs = append(contract.Inputs, staging.Placement{Port: NesvorInputStackMasks, Template: nesvorStackMaskTemplate})
	}

	return runContainer(ctx, s.Name(), s.Container, s.Ports().Inputs, in, invocation{
		contract:   contract,
		entrypoint: []string{"nesvor"},
		threads:    s.Threads,
		args: func(a *staging.Area) ([]process.Token, error) {
			args := []process.Token{process.Flag("register"), process.Flag("--input-stacks")}
			args = append(args, inputTokens(a, in, NesvorInputStacks, nesvorStackTemplate)...)
			if withMasks {
				args = append(args, process.Flag("--stack-masks"))
				args = append(args, inputTokens(a, in, NesvorInputStackMasks, nesvorStackMaskTemplate)...)
			}
			return append(args, process.Flag("--output-slices"), process.Staged("slices")), nil
		},
	})
}

var nesvorReconstructionContract = staging.Contract{
	Tool:   "nesvor reconstruct",
	Inputs: []staging.Placement{{Port: NesvorInputSlices, Template: "input_slices"}},
	Outputs: []staging.Artifact{
		{Name: NesvorOutputVolume, Template: "nesvor_recon.nii.gz"},
	},
}

// NesvorReconstruction reconstructs a volume from registered slices.
type NesvorReconstruction struct {
	Container
	// Resolution is the default isotropic output resolution in mm; zero lets NeSVoR decide.
	Resolution float64
}

func (s *NesvorReconstruction) Name() string { return "nesvor_reconstruct" }

func (s *NesvorReconstruction) Ports() Ports {
	return Ports{
		Inputs: schema.Schema{
			NesvorInputSlices:     schema.Dir(),
			NesvorInputResolution: schema.Optional(schema.Float()),
		},
		Outputs: nesvorReconstructionContract.OutputNames(),
	}
}

func (s *NesvorReconstruction) Execute(ctx context.Context, in domain.Inputs) (domain.Outputs, error) {
	resolution := s.Resolution
	if r, ok := in.Float(NesvorInputResolution); ok {
		resolution = r
	}

	return runContainer(ctx, s.Name(), s.Container, s.Ports().Inputs, in, invocation{
		contract:   nesvorReconstructionContract,
		entrypoint: []string{"nesvor"},
		threads:    s.Threads,
		args: func(a *staging.Area) ([]process.Token, error) {
			slices := in.String(NesvorInputSlices)
			volume, err := outputTokens(a, NesvorOutputVolume)
			if err != nil {
				return nil, err
			}
			args := []process.Token{
				process.Flag("reconstruct"),
				process.Flag("--input-slices"), process.Input(slices, "input_slices"),
				process.Flag("--output-volume"),
			}
			args = append(args, volume...)
			if resolution > 0 {
				args = append(args, process.Flag("--output-resolution"), process.Value(resolution))
			}
			return args, nil
		},
	})
}
