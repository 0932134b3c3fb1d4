// Package pipelines assembles the fixed pipeline topologies from a parameter set.
package pipelines

import (
	"fmt"
	"sort"

	"github.com/aretw0/fetpipe/pkg/adapters/process"
	"github.com/aretw0/fetpipe/pkg/config"
	"github.com/aretw0/fetpipe/pkg/domain"
	"github.com/aretw0/fetpipe/pkg/dsl"
	"github.com/aretw0/fetpipe/pkg/stages"
)

// Pipeline names.
const (
	NameNiftyMIC     = "niftymic"
	NameNesvor       = "nesvor"
	NameNiftyMICDHCP = "niftymic_dhcp"
)

// Pipeline input and output names beyond the well-known ports.
const (
	InputGestationalAge = "gestational_age"
	OutputReconMask     = "recon_mask"
	OutputStackMasks    = "stack_masks"
)

var builders = map[string]func(*config.Params) *dsl.Builder{
	NameNiftyMIC:     niftymic,
	NameNesvor:       nesvor,
	NameNiftyMICDHCP: niftymicDHCP,
}

// Names lists the available pipelines.
func Names() []string {
	names := make([]string, 0, len(builders))
	for name := range builders {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Build assembles the named pipeline. A nil params uses config.Default().
func Build(name string, params *config.Params) (*dsl.Graph, error) {
	build, ok := builders[name]
	if !ok {
		return nil, fmt.Errorf("unknown pipeline %q (available: %v)", name, Names())
	}
	if params == nil {
		params = config.Default()
	}
	g, err := build(params).Build()
	if err != nil {
		return nil, fmt.Errorf("pipeline %s: %w", name, err)
	}
	return g, nil
}

func container(p *config.Params, image string) stages.Container {
	return stages.Container{
		PreCommand: p.General.PreCommand,
		Image:      image,
		Mode:       process.Mode(p.General.Mode),
		Threads:    p.General.Threads,
	}
}

func denoiser(p *config.Params) *stages.Denoise {
	d := &stages.Denoise{
		Container: stages.Container{
			PreCommand: p.Denoising.PreCommand,
			Image:      p.Denoising.Image,
			Threads:    p.General.Threads,
		},
		Dimension: p.Denoising.Dimension,
	}
	if p.Denoising.Method == config.DenoiseNone {
		d.Local = stages.PassThrough
	}
	return d
}

// addNiftyMIC wires brain extraction, denoising and reconstruction from the stacks input.
func addNiftyMIC(b *dsl.Builder, p *config.Params) {
	c := container(p, p.General.NiftymicImage)

	b.Add("brain_extraction", &stages.BrainExtraction{Container: c}).
		From(dsl.InputNode, domain.PortStacks, stages.BrainExtractionInput)
	b.Map("denoising", denoiser(p), stages.DenoiseInput).
		From(dsl.InputNode, domain.PortStacks, stages.DenoiseInput)
	b.Add("merge_denoise", &stages.Merge{N: 1}).
		From("denoising", stages.DenoiseOutput, stages.MergeInput(1))
	b.Add("recon", &stages.Reconstruction{Container: c}).
		From("merge_denoise", stages.MergeOutput, stages.ReconInputStacks).
		From("brain_extraction", stages.BrainExtractionOutput, stages.ReconInputMasks)
}

func niftymic(p *config.Params) *dsl.Builder {
	b := dsl.New(NameNiftyMIC).
		Input(domain.PortStacks).
		Output(domain.PortReconFiles, OutputReconMask)
	addNiftyMIC(b, p)
	b.Connect("recon", stages.ReconOutputFiles, dsl.OutputNode, domain.PortReconFiles).
		Connect("recon", stages.ReconOutputMask, dsl.OutputNode, OutputReconMask)
	return b
}

func niftymicDHCP(p *config.Params) *dsl.Builder {
	b := dsl.New(NameNiftyMICDHCP).
		Input(domain.PortStacks, InputGestationalAge).
		Output(domain.PortReconFiles, domain.PortOutputDir, stages.DHCPOutputSegAllLabels, stages.DHCPOutputSurfWBSpec)
	addNiftyMIC(b, p)

	seg := &stages.DHCP{Container: container(p, p.General.DhcpImage), Flag: p.Segmentation.Flag}
	seg.Threads = p.Segmentation.Threads
	b.Add("segmentation", seg).
		From("recon", stages.ReconOutputFiles, stages.DHCPInputT2).
		From("recon", stages.ReconOutputMask, stages.DHCPInputMask).
		From(dsl.InputNode, InputGestationalAge, stages.DHCPInputAge)

	b.Connect("recon", stages.ReconOutputFiles, dsl.OutputNode, domain.PortReconFiles).
		Connect("segmentation", stages.DHCPOutputDir, dsl.OutputNode, domain.PortOutputDir).
		Connect("segmentation", stages.DHCPOutputSegAllLabels, dsl.OutputNode, stages.DHCPOutputSegAllLabels).
		Connect("segmentation", stages.DHCPOutputSurfWBSpec, dsl.OutputNode, stages.DHCPOutputSurfWBSpec)
	return b
}

// nesvor masks and registers the stacks, then reconstructs a volume from the registered slices.
// The masks are not fed to registration; they are exposed as a pipeline output.
func nesvor(p *config.Params) *dsl.Builder {
	c := container(p, p.General.NesvorImage)
	b := dsl.New(NameNesvor).
		Input(domain.PortStacks).
		Output(domain.PortOutputVolume, OutputStackMasks)

	b.Add("mask", &stages.NesvorSegmentation{Container: c, NoAugmentation: p.Nesvor.NoAugmentation}).
		From(dsl.InputNode, domain.PortStacks, stages.NesvorInputStacks)
	b.Add("registration", &stages.NesvorRegistration{Container: c}).
		From(dsl.InputNode, domain.PortStacks, stages.NesvorInputStacks)
	b.Add("reconstruction", &stages.NesvorReconstruction{Container: c, Resolution: p.Nesvor.Resolution}).
		From("registration", stages.NesvorOutputSlices, stages.NesvorInputSlices)

	b.Connect("reconstruction", stages.NesvorOutputVolume, dsl.OutputNode, domain.PortOutputVolume).
		Connect("mask", stages.NesvorOutputStackMasks, dsl.OutputNode, OutputStackMasks)
	return b
}
