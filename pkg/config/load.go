package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// Load reads a parameter file. The format follows the extension: .json, .yaml/.yml or .hcl.
// Defaults are applied and the result is validated.
func Load(path string) (*Params, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var raw map[string]any
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".json":
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	case ".hcl":
		raw, err = parseHCL(path, data)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported config format %q", ext)
	}

	return Decode(raw)
}

// Decode converts a generic document into Params.
// Numbers given as strings and durations such as "2h" are accepted. Unknown keys are not an
// error; they are listed in Params.Unused.
func Decode(raw map[string]any) (*Params, error) {
	var p Params
	var md mapstructure.Metadata
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
		WeaklyTypedInput: true,
		Metadata:         &md,
		Result:           &p,
	})
	if err != nil {
		return nil, err
	}
	if err := decoder.Decode(raw); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	p.Unused = md.Unused
	sort.Strings(p.Unused)

	p.ApplyDefaults()
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// hclFile mirrors Params with HCL blocks. Durations stay strings until Decode.
type hclFile struct {
	General      *hclGeneral      `hcl:"general,block" json:"general,omitempty"`
	Denoising    *hclDenoising    `hcl:"denoising,block" json:"denoising,omitempty"`
	Segmentation *hclSegmentation `hcl:"segmentation,block" json:"segmentation,omitempty"`
	Nesvor       *hclNesvor       `hcl:"nesvor,block" json:"nesvor,omitempty"`
	Runtime      *hclRuntime      `hcl:"runtime,block" json:"runtime,omitempty"`
}

type hclGeneral struct {
	PreCommand     string `hcl:"pre_command,optional" json:"pre_command,omitempty"`
	NiftymicImage  string `hcl:"niftymic_image,optional" json:"niftymic_image,omitempty"`
	NesvorImage    string `hcl:"nesvor_image,optional" json:"nesvor_image,omitempty"`
	DhcpImage      string `hcl:"dhcp_image,optional" json:"dhcp_image,omitempty"`
	Threads        int    `hcl:"threads,optional" json:"threads,omitempty"`
	MaxTries       int    `hcl:"max_tries,optional" json:"max_tries,omitempty"`
	AttemptTimeout string `hcl:"attempt_timeout,optional" json:"attempt_timeout,omitempty"`
	Mode           string `hcl:"mode,optional" json:"mode,omitempty"`
}

type hclDenoising struct {
	Method     string `hcl:"method,optional" json:"method,omitempty"`
	PreCommand string `hcl:"pre_command,optional" json:"pre_command,omitempty"`
	Image      string `hcl:"image,optional" json:"image,omitempty"`
	Dimension  int    `hcl:"dimension,optional" json:"dimension,omitempty"`
}

type hclSegmentation struct {
	Flag           string  `hcl:"flag,optional" json:"flag,omitempty"`
	GestationalAge float64 `hcl:"gestational_age,optional" json:"gestational_age,omitempty"`
	Threads        int     `hcl:"threads,optional" json:"threads,omitempty"`
}

type hclNesvor struct {
	NoAugmentation bool    `hcl:"no_augmentation_seg,optional" json:"no_augmentation_seg,omitempty"`
	Resolution     float64 `hcl:"output_resolution,optional" json:"output_resolution,omitempty"`
}

type hclRuntime struct {
	WorkDir   string `hcl:"work_dir,optional" json:"work_dir,omitempty"`
	Workers   int    `hcl:"workers,optional" json:"workers,omitempty"`
	Store     string `hcl:"store,optional" json:"store,omitempty"`
	StorePath string `hcl:"store_path,optional" json:"store_path,omitempty"`
	RedisAddr string `hcl:"redis_addr,optional" json:"redis_addr,omitempty"`
	Lock      bool   `hcl:"lock,optional" json:"lock,omitempty"`
	KeyEnv    string `hcl:"encryption_key_env,optional" json:"encryption_key_env,omitempty"`
}

func parseHCL(path string, data []byte) (map[string]any, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(data, path)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse HCL file %s: %w", path, diags)
	}

	var parsed hclFile
	if diags := gohcl.DecodeBody(file.Body, nil, &parsed); diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode HCL file %s: %w", path, diags)
	}

	// Round-trip through JSON so every format shares Decode.
	data, err := json.Marshal(parsed)
	if err != nil {
		return nil, fmt.Errorf("failed to convert HCL file %s: %w", path, err)
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to convert HCL file %s: %w", path, err)
	}
	return raw, nil
}
