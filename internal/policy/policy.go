// Package policy provides the per repository automerge configuration and
// stores to look it up.
package policy

import (
	"errors"
	"fmt"

	"github.com/simplesurance/automerger/internal/branchmatch"
)

// MergeMethod is the GitHub merge method used when merging a pull request.
type MergeMethod string

const (
	MergeMethodMerge  MergeMethod = "merge"
	MergeMethodSquash MergeMethod = "squash"
	MergeMethodRebase MergeMethod = "rebase"
)

const DefMergeMethod = MergeMethodMerge

// Config is the automerge policy of a repository.
type Config struct {
	// AutomergeTargetPatterns enable automerge for pull requests whose
	// target branch matches one of the patterns.
	AutomergeTargetPatterns []string `yaml:"automerge_target_branches"`
	// AutomergeFromSourcePatterns enable automerge for pull requests whose
	// source branch matches one of the patterns.
	AutomergeFromSourcePatterns []string `yaml:"automerge_source_branches"`
	// BlockedTargetPatterns disable automerge for pull requests whose
	// target branch matches one of the patterns, regardless of the allow
	// lists.
	BlockedTargetPatterns []string `yaml:"blocked_target_branches"`

	MergeMethod MergeMethod `yaml:"merge_method"`
}

// Validate returns an error if the config contains an invalid pattern or an
// unsupported merge method.
func (c *Config) Validate() error {
	var errs []error

	if err := branchmatch.Validate(c.AutomergeTargetPatterns); err != nil {
		errs = append(errs, fmt.Errorf("automerge_target_branches: %w", err))
	}

	if err := branchmatch.Validate(c.AutomergeFromSourcePatterns); err != nil {
		errs = append(errs, fmt.Errorf("automerge_source_branches: %w", err))
	}

	if err := branchmatch.Validate(c.BlockedTargetPatterns); err != nil {
		errs = append(errs, fmt.Errorf("blocked_target_branches: %w", err))
	}

	switch c.MergeMethod {
	case "", MergeMethodMerge, MergeMethodSquash, MergeMethodRebase:
	default:
		errs = append(errs, fmt.Errorf("unsupported merge_method: %q", c.MergeMethod))
	}

	return errors.Join(errs...)
}

// EffectiveMergeMethod returns the configured merge method or DefMergeMethod
// if none is set.
func (c *Config) EffectiveMergeMethod() MergeMethod {
	if c.MergeMethod == "" {
		return DefMergeMethod
	}

	return c.MergeMethod
}
