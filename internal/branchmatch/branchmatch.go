// Package branchmatch matches branch names against regular expression
// patterns.
package branchmatch

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/simplesurance/automerger/internal/logfields"
)

const refHeadsPrefix = "refs/heads/"

// NormalizeBranchName strips the refs/heads/ prefix from ref.
func NormalizeBranchName(ref string) string {
	return strings.TrimPrefix(ref, refHeadsPrefix)
}

func compile(pattern string) (*regexp.Regexp, error) {
	return regexp.Compile("^(?:" + pattern + ")$")
}

// Match returns true if one of the patterns matches the whole branch name.
// The branch is normalized with NormalizeBranchName before matching.
// Invalid patterns never match.
func Match(patterns []string, branch string) bool {
	branch = NormalizeBranchName(branch)

	for _, p := range patterns {
		re, err := compile(p)
		if err != nil {
			zap.L().Named("branchmatch").Warn(
				"ignoring invalid branch pattern",
				logfields.Event("invalid_branch_pattern_ignored"),
				zap.String("pattern", p),
				zap.Error(err),
			)
			continue
		}

		if re.MatchString(branch) {
			return true
		}
	}

	return false
}

// Validate returns an error describing all patterns that are not valid
// regular expressions.
func Validate(patterns []string) error {
	var errs []error

	for _, p := range patterns {
		if _, err := compile(p); err != nil {
			errs = append(errs, fmt.Errorf("pattern %q: %w", p, err))
		}
	}

	return errors.Join(errs...)
}
