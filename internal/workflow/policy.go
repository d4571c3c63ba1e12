package workflow

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/kyleking/gh-releasewatch/internal/buildtag"
)

// Policy is the release policy: which directives exist and which jobs each
// build type requires.
type Policy struct {
	Directives   []buildtag.Directive
	RequiredJobs JobTable
}

// DefaultPolicy returns the built-in tables.
func DefaultPolicy() Policy {
	return Policy{
		Directives:   buildtag.DefaultDirectives,
		RequiredJobs: DefaultJobTable,
	}
}

// LoadPolicy reads a policy file. An empty path or missing file yields the defaults.
func LoadPolicy(path string) (Policy, error) {
	if path == "" {
		return DefaultPolicy(), nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return DefaultPolicy(), nil
	}
	if err != nil {
		return Policy{}, fmt.Errorf("read policy: %w", err)
	}
	return ParsePolicy(data)
}

// ParsePolicy parses policy YAML. Sections left out keep their defaults.
func ParsePolicy(data []byte) (Policy, error) {
	var raw rawPolicy
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return Policy{}, err
	}

	p := DefaultPolicy()
	if len(raw.Directives) > 0 {
		for i, d := range raw.Directives {
			if d.Pattern == "" || d.Type == "" {
				return Policy{}, fmt.Errorf("directive %d: pattern and type are required", i)
			}
			if !d.Type.Releasable() {
				return Policy{}, fmt.Errorf("directive %d: unknown build type %q", i, d.Type)
			}
		}
		p.Directives = raw.Directives
	}
	if len(raw.RequiredJobs) > 0 {
		p.RequiredJobs = make(JobTable, len(raw.RequiredJobs))
		for bt, r := range raw.RequiredJobs {
			if !bt.Releasable() {
				return Policy{}, fmt.Errorf("required_jobs: unknown build type %q", bt)
			}
			p.RequiredJobs[bt] = Requirement(r)
		}
	}
	return p, nil
}

type rawPolicy struct {
	Directives   []buildtag.Directive                 `yaml:"directives"`
	RequiredJobs map[buildtag.BuildType]rawRequirement `yaml:"required_jobs"`
}

// rawRequirement accepts a job name, a list of job names, or a mapping.
type rawRequirement struct {
	Jobs           []string
	PartialSuccess bool
}

func (r *rawRequirement) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		r.Jobs = []string{node.Value}
	case yaml.SequenceNode:
		return node.Decode(&r.Jobs)
	case yaml.MappingNode:
		var m struct {
			Jobs           yaml.Node `yaml:"jobs"`
			PartialSuccess bool      `yaml:"partial_success"`
		}
		if err := node.Decode(&m); err != nil {
			return err
		}
		r.PartialSuccess = m.PartialSuccess
		if m.Jobs.Kind == 0 {
			return nil
		}
		var jobs rawRequirement
		if err := jobs.UnmarshalYAML(&m.Jobs); err != nil {
			return err
		}
		r.Jobs = jobs.Jobs
	default:
		return fmt.Errorf("line %d: unsupported required_jobs value", node.Line)
	}
	return nil
}
