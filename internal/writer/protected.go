package writer

import (
	"fmt"
	"regexp"
	"strings"
)

// PatternSet is a compiled, additive list of comm-name patterns, used
// both for the protected set (processes the watchdog will never act
// on) and the optional target allowlist. Patterns are anchored to the
// full comm string regardless of how the configured pattern is
// written, so "systemd" cannot accidentally match "systemd-journald".
type PatternSet struct {
	rules []*regexp.Regexp
}

// NewPatternSet compiles raw into an anchored PatternSet. An empty raw
// list produces a PatternSet that matches nothing.
func NewPatternSet(raw []string) (*PatternSet, error) {
	set := &PatternSet{}
	for _, pat := range raw {
		anchored := anchor(pat)
		re, err := regexp.Compile(anchored)
		if err != nil {
			return nil, fmt.Errorf("writer: invalid pattern %q: %w", pat, err)
		}
		set.rules = append(set.rules, re)
	}
	return set, nil
}

// anchor wraps pat so it must match the entire comm string. Nesting an
// already-anchored pattern inside ^(?:...)$ is harmless in RE2.
func anchor(pat string) string {
	return "^(?:" + pat + ")$"
}

// Matches reports whether comm matches any rule in the set.
func (s *PatternSet) Matches(comm string) bool {
	for _, re := range s.rules {
		if re.MatchString(comm) {
			return true
		}
	}
	return false
}

// Empty reports whether the set has no rules, used to distinguish "no
// target allowlist configured" (match everything not protected) from
// "target allowlist configured but nothing matches".
func (s *PatternSet) Empty() bool {
	return len(s.rules) == 0
}
