package staging

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/aretw0/fetpipe/pkg/domain"
)

// Area is a prepared staging root for one stage run.
type Area struct {
	Root     string
	Subject  string
	contract Contract
	inputs   domain.Inputs
}

// Root builds the staging root of a node: <workDir>/<runID>/<node>[/<index>].
// Distinct runs and distinct mapped items never share a root.
func Root(workDir, runID, node string, index int) string {
	root := filepath.Join(workDir, runID, node)
	if index >= 0 {
		root = filepath.Join(root, fmt.Sprintf("%03d", index))
	}
	return root
}

// Stage creates root (reusing it if present) and places every contract input in it.
// Two inputs that would land on the same path, or two list elements that would produce the
// same output, are rejected before anything is placed.
func Stage(root string, inputs domain.Inputs, c Contract) (*Area, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, &domain.StagingError{Op: "mkdir", Path: root, Err: err}
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, &domain.StagingError{Op: "mkdir", Path: abs, Err: err}
	}

	area := &Area{Root: abs, contract: c, inputs: inputs}
	if c.Subject != "" {
		subjects := inputs.Paths(c.Subject)
		if len(subjects) == 0 {
			return nil, &domain.StagingError{Op: "validate", Path: c.Subject, Err: errors.New("subject input not bound")}
		}
		area.Subject = Stem(subjects[0])
	}

	type placement struct{ src, dst string }
	var placements []placement
	claimed := make(map[string]string)
	for _, p := range c.Inputs {
		sources := inputs.Paths(p.Port)
		if len(sources) == 0 {
			return nil, &domain.StagingError{Op: "validate", Path: p.Port, Err: errors.New("input not bound")}
		}
		for _, src := range sources {
			dst := filepath.Join(abs, Expand(p.Template, src, area.Subject))
			if prev, ok := claimed[dst]; ok {
				return nil, &domain.StagingError{Op: "validate", Path: dst, Err: fmt.Errorf("inputs %s and %s collide", prev, src)}
			}
			claimed[dst] = src
			placements = append(placements, placement{src, dst})
		}
	}

	var dirs []string
	for _, art := range c.Outputs {
		paths, err := area.Resolve(art.Name)
		if err != nil {
			return nil, err
		}
		seen := make(map[string]bool, len(paths))
		for _, p := range paths {
			if seen[p] {
				return nil, &domain.StagingError{Op: "validate", Path: p, Err: fmt.Errorf("output %s resolves to the same path for two inputs", art.Name)}
			}
			seen[p] = true
			dirs = append(dirs, filepath.Dir(p))
		}
	}

	for _, p := range placements {
		if err := place(p.src, p.dst); err != nil {
			return nil, err
		}
	}
	// Tools write into the output tree but do not always create it.
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, &domain.StagingError{Op: "mkdir", Path: dir, Err: err}
		}
	}
	return area, nil
}

// Path resolves a root-relative path.
func (a *Area) Path(rel string) string {
	return filepath.Join(a.Root, filepath.FromSlash(rel))
}

// Rel returns the root-relative path of a placed input.
func (a *Area) Rel(template, file string) string {
	return filepath.ToSlash(Expand(template, file, a.Subject))
}

// Resolve returns the absolute path(s) of a declared output.
func (a *Area) Resolve(name string) ([]string, error) {
	art, ok := a.contract.Output(name)
	if !ok {
		return nil, fmt.Errorf("%s: no output %q in naming contract", a.contract.Tool, name)
	}
	if art.Each == "" {
		return []string{a.Path(Expand(art.Template, "", a.Subject))}, nil
	}
	var paths []string
	for _, src := range a.inputs.Paths(art.Each) {
		paths = append(paths, a.Path(Expand(art.Template, src, a.Subject)))
	}
	return paths, nil
}

// Expected lists every artifact path the completion check must find.
func (a *Area) Expected() ([]string, error) {
	var expected []string
	for _, art := range a.contract.Outputs {
		if art.NoVerify {
			continue
		}
		paths, err := a.Resolve(art.Name)
		if err != nil {
			return nil, err
		}
		expected = append(expected, paths...)
	}
	return expected, nil
}

// Outputs maps every declared output to its resolved path. List expansions stay lists.
func (a *Area) Outputs() (domain.Outputs, error) {
	out := make(domain.Outputs, len(a.contract.Outputs))
	for _, art := range a.contract.Outputs {
		paths, err := a.Resolve(art.Name)
		if err != nil {
			return nil, err
		}
		if art.Each != "" {
			out[art.Name] = paths
		} else {
			out[art.Name] = paths[0]
		}
	}
	return out, nil
}

// place copies src to dst so a tool rewriting its staged inputs never touches the source.
// Directories are placed file by file.
func place(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return &domain.StagingError{Op: "copy", Path: src, Err: err}
	}
	if absSrc, err := filepath.Abs(src); err == nil && absSrc == dst {
		return nil
	}
	if info.IsDir() {
		return placeDir(src, dst)
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return &domain.StagingError{Op: "mkdir", Path: filepath.Dir(dst), Err: err}
	}
	// A previous run may have left the destination behind, possibly as a link to the source.
	_ = os.Remove(dst)
	if err := copyFile(src, dst); err != nil {
		return &domain.StagingError{Op: "copy", Path: dst, Err: err}
	}
	return nil
}

func placeDir(src, dst string) error {
	return filepath.WalkDir(src, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return &domain.StagingError{Op: "copy", Path: p, Err: err}
		}
		rel, err := filepath.Rel(src, p)
		if err != nil {
			return &domain.StagingError{Op: "copy", Path: p, Err: err}
		}
		target := filepath.Join(dst, rel)
		if d.IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return &domain.StagingError{Op: "mkdir", Path: target, Err: err}
			}
			return nil
		}
		return place(p, target)
	})
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}
