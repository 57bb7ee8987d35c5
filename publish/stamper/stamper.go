package stamper

import (
	"fmt"
	"maps"
	"os"
	"strings"

	"github.com/valyala/fasttemplate"
)

// Vars maps placeholder names to their values.
type Vars map[string]string

// LoadVars reads KEY VALUE files and merges them into a
// single map, later files overriding earlier ones. The
// first space is the delimiter; lines without one are
// skipped.
func LoadVars(files []string) (Vars, error) {
	const errCtx = "loading template vars"

	vars := make(Vars)

	for _, vf := range files {
		content, err := os.ReadFile(vf) //nolint:gosec // paths from CLI flags
		if err != nil {
			return nil, fmt.Errorf("%s: %w", errCtx, err)
		}

		for _, line := range strings.Split(string(content), "\n") {
			key, value, ok := strings.Cut(line, " ")
			if ok && key != "" {
				vars[key] = value
			}
		}
	}

	return vars, nil
}

// With returns a copy of v overlaid with other.
func (v Vars) With(other Vars) Vars {
	out := make(Vars, len(v)+len(other))
	maps.Copy(out, v)
	maps.Copy(out, other)

	return out
}

// Render substitutes {VAR} placeholders of format. Unknown
// variables are preserved as-is.
func Render(format string, vars Vars) string {
	m := make(map[string]any, len(vars))
	for k, val := range vars {
		m[k] = val
	}

	return fasttemplate.ExecuteStringStd(format, "{", "}", m)
}
