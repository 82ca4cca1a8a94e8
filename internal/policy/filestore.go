package policy

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type repositoryPolicy struct {
	Owner      string `yaml:"owner"`
	Repository string `yaml:"repository"`
	Config     `yaml:",inline"`
}

type policyFile struct {
	Default      *Config            `yaml:"default"`
	Repositories []repositoryPolicy `yaml:"repositories"`
}

// FileStore reads policies from a YAML file.
// The file is read on every lookup, changes are effective without a restart.
//
// Example:
//
//	default:
//	  blocked_target_branches: ["main"]
//	repositories:
//	  - owner: simplesurance
//	    repository: automerger
//	    automerge_target_branches: ["develop", "release/.*"]
//	    merge_method: squash
type FileStore struct {
	path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (s *FileStore) load() (*policyFile, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, err
	}

	var result policyFile
	if err := yaml.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("parsing %s failed: %w", s.path, err)
	}

	return &result, nil
}

// Validate loads the policy file and validates all policies.
func (s *FileStore) Validate() error {
	pf, err := s.load()
	if err != nil {
		return err
	}

	if pf.Default != nil {
		if err := pf.Default.Validate(); err != nil {
			return fmt.Errorf("default policy: %w", err)
		}
	}

	for _, r := range pf.Repositories {
		if r.Owner == "" || r.Repository == "" {
			return fmt.Errorf("policy entry with empty owner (%q) or repository (%q)", r.Owner, r.Repository)
		}

		if err := r.Config.Validate(); err != nil {
			return fmt.Errorf("policy of %s/%s: %w", r.Owner, r.Repository, err)
		}
	}

	return nil
}

// ConfigForRepo returns the policy for the repository.
// If none is defined for it, the default policy of the file or if that is
// unset an empty Config is returned.
func (s *FileStore) ConfigForRepo(_ context.Context, projectKey, repoSlug string) (*Config, error) {
	pf, err := s.load()
	if err != nil {
		return nil, fmt.Errorf("loading policy file failed: %w", err)
	}

	for i := range pf.Repositories {
		r := &pf.Repositories[i]
		if r.Owner == projectKey && r.Repository == repoSlug {
			return &r.Config, nil
		}
	}

	if pf.Default != nil {
		return pf.Default, nil
	}

	return &Config{}, nil
}
