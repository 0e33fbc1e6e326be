package shader

import (
	"fmt"
	"strings"
)

type condFrame struct {
	parentActive bool
	taken        bool // branch condition of the #ifdef/#ifndef
	inElse       bool
}

func (f condFrame) active() bool {
	return f.parentActive && f.taken != f.inElse
}

// Preprocess resolves #ifdef, #ifndef, #else and #endif against the defined
// macros. Directive and disabled lines are blanked so line numbers in later
// diagnostics still match the source.
func Preprocess(src string, defined []string) (string, error) {
	set := make(map[string]bool, len(defined))
	for _, d := range defined {
		set[d] = true
	}

	lines := strings.Split(src, "\n")
	var stack []condFrame
	active := true

	for i, raw := range lines {
		var directive, arg string
		if fields := strings.Fields(raw); len(fields) > 0 {
			directive = fields[0]
			if len(fields) > 1 {
				arg = fields[1]
			}
		}

		switch directive {
		case "#ifdef", "#ifndef":
			if arg == "" {
				return "", fmt.Errorf("line %d: %s without a name", i+1, directive)
			}
			taken := set[arg]
			if directive == "#ifndef" {
				taken = !taken
			}
			stack = append(stack, condFrame{parentActive: active, taken: taken})
		case "#else":
			if len(stack) == 0 {
				return "", fmt.Errorf("line %d: #else without #ifdef", i+1)
			}
			top := &stack[len(stack)-1]
			if top.inElse {
				return "", fmt.Errorf("line %d: duplicate #else", i+1)
			}
			top.inElse = true
		case "#endif":
			if len(stack) == 0 {
				return "", fmt.Errorf("line %d: #endif without #ifdef", i+1)
			}
			stack = stack[:len(stack)-1]
		default:
			if !active {
				lines[i] = ""
			}
			continue
		}

		lines[i] = ""
		active = true
		if len(stack) > 0 {
			active = stack[len(stack)-1].active()
		}
	}

	if len(stack) > 0 {
		return "", fmt.Errorf("%d unterminated #ifdef block(s)", len(stack))
	}
	return strings.Join(lines, "\n"), nil
}
