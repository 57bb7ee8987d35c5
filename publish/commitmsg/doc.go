// Package commitmsg generates the commit messages the
// publisher creates. Each message lists the repository
// paths the commit carried between marker lines, so a
// branch head can be traced back to its files.
package commitmsg
