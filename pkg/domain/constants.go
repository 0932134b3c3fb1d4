package domain

// Well-known port names shared by the pipeline variants.
const (
	PortStacks       = "stacks"
	PortOutputDir    = "output_dir"
	PortReconFiles   = "recon_files"
	PortOutputVolume = "output_volume"
)

// DefaultMaxTries is the verification loop budget used when none is configured.
const DefaultMaxTries = 10
