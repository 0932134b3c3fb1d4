// Package config loads pipeline parameter files.
//
// A parameter file is a nested key/value document with a "general" section and optional
// "denoising", "segmentation", "nesvor" and "runtime" sections. JSON, YAML and HCL files
// are accepted; all of them decode into Params.
package config

import (
	"fmt"
	"runtime"
	"time"

	"github.com/aretw0/fetpipe/pkg/adapters/process"
	"github.com/aretw0/fetpipe/pkg/domain"
)

// Params holds every tunable of a pipeline run.
type Params struct {
	General      General      `mapstructure:"general"`
	Denoising    Denoising    `mapstructure:"denoising"`
	Segmentation Segmentation `mapstructure:"segmentation"`
	Nesvor       Nesvor       `mapstructure:"nesvor"`
	Runtime      Runtime      `mapstructure:"runtime"`

	// Unused lists the keys of the loaded document that no field consumed.
	Unused []string `mapstructure:"-"`
}

// General configures how tools are launched.
type General struct {
	// PreCommand prefixes container launches, e.g. "docker run --rm ".
	PreCommand     string        `mapstructure:"pre_command"`
	NiftymicImage  string        `mapstructure:"niftymic_image"`
	NesvorImage    string        `mapstructure:"nesvor_image"`
	DhcpImage      string        `mapstructure:"dhcp_image"`
	Threads        int           `mapstructure:"threads"`
	MaxTries       int           `mapstructure:"max_tries"`
	AttemptTimeout time.Duration `mapstructure:"attempt_timeout"`
	// Mode forces an execution mode; "direct" runs tools on the host.
	Mode string `mapstructure:"mode"`
}

// Denoising selects how stacks are denoised.
type Denoising struct {
	// Method is "ants" (DenoiseImage) or "none" (pass-through).
	Method     string `mapstructure:"method"`
	PreCommand string `mapstructure:"pre_command"`
	Image      string `mapstructure:"image"`
	Dimension  int    `mapstructure:"dimension"`
}

// Segmentation configures the dHCP stage.
type Segmentation struct {
	Flag           string  `mapstructure:"flag"`
	GestationalAge float64 `mapstructure:"gestational_age"`
	// Threads is passed to the dHCP pipeline as -t; zero lets it pick.
	Threads int `mapstructure:"threads"`
}

// Nesvor configures the NeSVoR stages.
type Nesvor struct {
	NoAugmentation bool    `mapstructure:"no_augmentation_seg"`
	Resolution     float64 `mapstructure:"output_resolution"`
}

// Runtime configures the engine and the run ledger.
type Runtime struct {
	WorkDir   string `mapstructure:"work_dir"`
	Workers   int    `mapstructure:"workers"`
	Store     string `mapstructure:"store"`
	StorePath string `mapstructure:"store_path"`
	RedisAddr string `mapstructure:"redis_addr"`
	// Lock enables staging-root locks (through Redis when the store is redis).
	Lock bool `mapstructure:"lock"`
	// EncryptionKeyEnv names the environment variable holding a hex AES-256 key. When set,
	// stage outputs and errors are encrypted in the run store.
	EncryptionKeyEnv string `mapstructure:"encryption_key_env"`
}

// Denoising methods.
const (
	DenoiseANTs = "ants"
	DenoiseNone = "none"
)

// Run ledger backends.
const (
	StoreMemory = "memory"
	StoreFile   = "file"
	StoreRedis  = "redis"
)

// Default returns the parameters used when no file is given.
func Default() *Params {
	p := &Params{}
	p.ApplyDefaults()
	return p
}

// ApplyDefaults fills every unset value.
func (p *Params) ApplyDefaults() {
	if p.General.Threads <= 0 {
		p.General.Threads = 1
	}
	if p.General.MaxTries <= 0 {
		p.General.MaxTries = domain.DefaultMaxTries
	}
	if p.Denoising.Method == "" {
		p.Denoising.Method = DenoiseANTs
	}
	if p.Denoising.Dimension <= 0 {
		p.Denoising.Dimension = 3
	}
	if p.Runtime.WorkDir == "" {
		p.Runtime.WorkDir = ".fetpipe/work"
	}
	if p.Runtime.Workers <= 0 {
		p.Runtime.Workers = runtime.NumCPU()
	}
	if p.Runtime.Store == "" {
		p.Runtime.Store = StoreFile
	}
	if p.Runtime.StorePath == "" {
		p.Runtime.StorePath = ".fetpipe/runs"
	}
	if p.Runtime.RedisAddr == "" {
		p.Runtime.RedisAddr = "localhost:6379"
	}
}

// ExecutionMode resolves the mode container stages will use.
func (p *Params) ExecutionMode() (process.Mode, error) {
	inv := process.Invocation{Mode: process.Mode(p.General.Mode), PreCommand: p.General.PreCommand}
	return inv.ResolvedMode()
}

// Validate checks the parameters that would otherwise only fail once a tool is launched.
func (p *Params) Validate() error {
	switch p.General.Mode {
	case "", string(process.ModeDirect), string(process.ModeDocker), string(process.ModeSingularity):
	default:
		return fmt.Errorf("general.mode: unknown mode %q", p.General.Mode)
	}
	if _, err := p.ExecutionMode(); err != nil {
		return fmt.Errorf("general.pre_command: %w", err)
	}
	if p.General.AttemptTimeout < 0 {
		return fmt.Errorf("general.attempt_timeout must not be negative")
	}
	switch p.Denoising.Method {
	case DenoiseANTs, DenoiseNone:
	default:
		return fmt.Errorf("denoising.method: unknown method %q", p.Denoising.Method)
	}
	if p.Denoising.PreCommand != "" {
		if _, err := process.ResolveMode(p.Denoising.PreCommand); err != nil {
			return fmt.Errorf("denoising.pre_command: %w", err)
		}
	}
	switch p.Runtime.Store {
	case StoreMemory, StoreFile, StoreRedis:
	default:
		return fmt.Errorf("runtime.store: unknown backend %q", p.Runtime.Store)
	}
	return nil
}
