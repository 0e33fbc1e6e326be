package driver

import (
	"fmt"
	"regexp"

	"github.com/Faultbox/midgard-assets/internal/config"
)

// Rule routes manifest entries matching Pattern to a compiler.
type Rule struct {
	Pattern  *regexp.Regexp
	Compiler string
	Outputs  []string // templates in Regexp.Expand syntax
}

var groupRef = regexp.MustCompile(`\$(\d+)`)

// normalizeTemplate rewrites $N as ${N} so a group reference followed by
// letters ($1_MTL) still names group N.
func normalizeTemplate(t string) string {
	return groupRef.ReplaceAllString(t, "$${$1}")
}

// CompileRules compiles rule configs in order. Patterns must match the whole
// manifest entry.
func CompileRules(cfgs []config.RuleConfig) ([]Rule, error) {
	rules := make([]Rule, 0, len(cfgs))
	for i, rc := range cfgs {
		re, err := regexp.Compile(`^(?:` + rc.Pattern + `)$`)
		if err != nil {
			return nil, fmt.Errorf("rule %d (%s): %w", i, rc.Pattern, err)
		}
		outputs := make([]string, len(rc.Outputs))
		for j, out := range rc.Outputs {
			outputs[j] = normalizeTemplate(out)
		}
		rules = append(rules, Rule{Pattern: re, Compiler: rc.Compiler, Outputs: outputs})
	}
	return rules, nil
}

// Expand returns the output paths for entry, or false if the rule does not
// match.
func (r Rule) Expand(entry string) ([]string, bool) {
	m := r.Pattern.FindStringSubmatchIndex(entry)
	if m == nil {
		return nil, false
	}
	outputs := make([]string, len(r.Outputs))
	for i, t := range r.Outputs {
		outputs[i] = string(r.Pattern.ExpandString(nil, t, entry, m))
	}
	return outputs, true
}
