// Package staging prepares the directory tree an external tool expects to find its inputs in
// and to write its outputs to.
//
// Every tool has a naming Contract: a fixed table of templates that say where each input must
// be placed and where each output will appear. Templates understand three variables:
//
//	{name}     basename of the file being placed ("case01.nii.gz")
//	{stem}     basename without the NIfTI extension ("case01")
//	{subject}  stem of the contract's Subject port
//
// Contracts must match the tools' on-disk conventions exactly; they are the most tool-coupled
// part of fetpipe.
package staging

import (
	"path/filepath"
	"strings"
)

// Placement copies the file(s) bound to Port into Template, relative to the staging root.
// A list port places every element, each with its own {name} and {stem}.
type Placement struct {
	Port     string
	Template string
}

// Artifact is an output the tool is expected to produce.
type Artifact struct {
	Name     string
	Template string
	// Each expands the template once per element of the named list port ({stem} of each).
	Each string
	// Dir marks an output that is a directory.
	Dir bool
	// NoVerify excludes the artifact from the completion check (e.g. the staging root itself).
	NoVerify bool
}

// Contract is the naming convention of one external tool.
type Contract struct {
	Tool    string
	Subject string
	Inputs  []Placement
	Outputs []Artifact
}

// Output returns the declared artifact called name.
func (c Contract) Output(name string) (Artifact, bool) {
	for _, a := range c.Outputs {
		if a.Name == name {
			return a, true
		}
	}
	return Artifact{}, false
}

// OutputNames lists the declared output names in declaration order.
func (c Contract) OutputNames() []string {
	names := make([]string, 0, len(c.Outputs))
	for _, a := range c.Outputs {
		names = append(names, a.Name)
	}
	return names
}

// Without returns a copy of the contract without the named outputs.
func (c Contract) Without(names ...string) Contract {
	drop := make(map[string]bool, len(names))
	for _, n := range names {
		drop[n] = true
	}
	out := c
	out.Outputs = nil
	for _, a := range c.Outputs {
		if !drop[a.Name] {
			out.Outputs = append(out.Outputs, a)
		}
	}
	return out
}

var niftiExts = []string{".nii.gz", ".nii"}

// Stem strips the directory and the NIfTI extension from p.
func Stem(p string) string {
	base := filepath.Base(p)
	for _, ext := range niftiExts {
		if strings.HasSuffix(base, ext) {
			return strings.TrimSuffix(base, ext)
		}
	}
	return base
}

// Expand fills a template for the given file and subject stem.
func Expand(template, file, subject string) string {
	r := strings.NewReplacer(
		"{name}", filepath.Base(file),
		"{stem}", Stem(file),
		"{subject}", subject,
	)
	return filepath.FromSlash(r.Replace(template))
}
