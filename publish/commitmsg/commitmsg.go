package commitmsg

import "strings"

const (
	begin = "--- published paths begin ---"
	end   = "--- published paths end ---"
)

// Generate produces a commit message made of subject
// followed by a blank line and the given repository paths
// between begin/end markers.
func Generate(subject string, paths []string) string {
	var sb strings.Builder

	sb.WriteString(strings.TrimSpace(subject))
	sb.WriteString("\n\n")
	sb.WriteString(begin)
	sb.WriteByte('\n')

	for _, p := range paths {
		sb.WriteString(p)
		sb.WriteByte('\n')
	}

	sb.WriteString(end)
	sb.WriteByte('\n')

	return sb.String()
}
