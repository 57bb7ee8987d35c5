// Package stamper fills single-brace {VAR} placeholders
// of the branch, commit and pull request templates.
// Variables come from the run itself and from optional
// KEY VALUE files written by the CI job.
package stamper
