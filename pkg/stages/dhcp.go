package stages

import (
	"context"

	"github.com/aretw0/fetpipe/pkg/adapters/process"
	"github.com/aretw0/fetpipe/pkg/domain"
	"github.com/aretw0/fetpipe/pkg/schema"
	"github.com/aretw0/fetpipe/pkg/staging"
)

// dHCP port names.
const (
	DHCPInputT2            = "T2"
	DHCPInputMask          = "mask"
	DHCPInputAge           = "gestational_age"
	DHCPInputThreads       = "threads"
	DHCPInputFlag          = "flag"
	DHCPOutputDir          = domain.PortOutputDir
	DHCPOutputSegAllLabels = "output_seg_all_labels"
	DHCPOutputSurfWBSpec   = "output_surf_wb_spec"
	dhcpSurfaceFlagAll     = "-all"
	dhcpSurfaceFlagSurf    = "surf"
	dhcpStructuralPipeline = "/usr/local/src/structural-pipeline/fetal-pipeline.sh"
)

// dhcpContract is the on-disk layout the structural pipeline expects. The mask must already
// sit in segmentations/ or the pipeline runs its own brain extraction.
var dhcpContract = staging.Contract{
	Tool:    "dhcp",
	Subject: DHCPInputT2,
	Inputs: []staging.Placement{
		{Port: DHCPInputT2, Template: "{name}"},
		{Port: DHCPInputMask, Template: "segmentations/{subject}_brain_mask.nii.gz"},
	},
	Outputs: []staging.Artifact{
		{Name: DHCPOutputDir, Template: ".", Dir: true, NoVerify: true},
		{Name: DHCPOutputSegAllLabels, Template: "segmentations/{subject}_all_labels.nii.gz"},
		{Name: DHCPOutputSurfWBSpec, Template: "surfaces/{subject}_all_labels/workbench/{subject}_all_labels.native.wb.spec"},
	},
}

// DHCP runs the dHCP structural pipeline (segmentation and, optionally, surfaces) on one
// reconstructed volume.
type DHCP struct {
	Container
	// Flag is the default pipeline flag when the input is not bound ("-all", "surf", ...).
	Flag string
}

func (s *DHCP) Name() string { return "dhcp" }

func (s *DHCP) Ports() Ports {
	return Ports{
		Inputs: schema.Schema{
			DHCPInputT2:      schema.File(),
			DHCPInputMask:    schema.File(),
			DHCPInputAge:     schema.Float(),
			DHCPInputThreads: schema.Optional(schema.Int()),
			DHCPInputFlag:    schema.Optional(schema.String()),
		},
		Outputs: dhcpContract.OutputNames(),
	}
}

// SurfacesRequested reports whether flag makes the pipeline produce surfaces.
func SurfacesRequested(flag string) bool {
	return flag == dhcpSurfaceFlagAll || flag == dhcpSurfaceFlagSurf
}

func (s *DHCP) Execute(ctx context.Context, in domain.Inputs) (domain.Outputs, error) {
	flag := s.Flag
	if f, ok := in[DHCPInputFlag].(string); ok {
		flag = f
	}

	contract := dhcpContract
	if !SurfacesRequested(flag) {
		contract = contract.Without(DHCPOutputSurfWBSpec)
	}
	age, _ := in.Float(DHCPInputAge)
	threads := threadsOf(in, s.Container)

	return runContainer(ctx, s.Name(), s.Container, s.Ports().Inputs, in, invocation{
		contract:        contract,
		entrypoint:      []string{dhcpStructuralPipeline},
		imageEntrypoint: true,
		args: func(a *staging.Area) ([]process.Token, error) {
			t2 := in.String(DHCPInputT2)
			args := []process.Token{
				process.Input(t2, a.Rel("{name}", t2)),
				process.Value(age),
				process.Flag("-data-dir"), process.DataDir(),
				process.Flag("-t"), process.Value(threads),
				process.Flag("-c"), process.Value(0),
			}
			if flag != "" {
				args = append(args, process.Flag(flag))
			}
			return args, nil
		},
	})
}
