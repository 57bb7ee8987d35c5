package git

// RepoRef identifies a repository on the hosting
// platform.
type RepoRef struct {
	Owner string
	Name  string
}

// String returns the "owner/name" form.
func (r RepoRef) String() string {
	return r.Owner + "/" + r.Name
}

// Repository describes a repository as reported by the
// provider. Parent is set only for forks.
type Repository struct {
	Ref           RepoRef
	DefaultBranch string
	Parent        *RepoRef
}

// IsForkOf reports whether the repository declares
// upstream as its parent.
func (r Repository) IsForkOf(upstream RepoRef) bool {
	return r.Parent != nil && *r.Parent == upstream
}

// BranchPoint is a snapshot of a branch head. It is
// captured once per commit operation and never mutated.
type BranchPoint struct {
	Ref       string
	CommitSHA string
	TreeSHA   string
}

// FileChange maps a local file or folder to its
// destination path in the repository. LocalPath may be a
// directory; it is then expanded recursively.
type FileChange struct {
	RepoPath  string
	LocalPath string
}

// EntryMode is the git file mode of a tree entry.
type EntryMode string

// Tree entry modes understood by git.
const (
	ModeFile         EntryMode = "100644"
	ModeExecutable   EntryMode = "100755"
	ModeSubdirectory EntryMode = "040000"
	ModeSubmodule    EntryMode = "160000"
	ModeSymlink      EntryMode = "120000"
)

// ObjectKind is the git object type a tree entry points
// to.
type ObjectKind string

// Object kinds referenced from a tree.
const (
	KindBlob   ObjectKind = "blob"
	KindTree   ObjectKind = "tree"
	KindCommit ObjectKind = "commit"
)

// BlobRef is an uploaded object ready to be placed in a
// tree at Path.
type BlobRef struct {
	Path string
	SHA  string
	Mode EntryMode
	Kind ObjectKind
}

// Commit is a node of the history graph.
type Commit struct {
	SHA        string
	TreeSHA    string
	ParentSHAs []string
}

// ContentKind tags a ContentEntry.
type ContentKind int

// Content entry variants.
const (
	ContentFile ContentKind = iota + 1
	ContentDirectory
)

// String returns a readable name for the kind.
func (k ContentKind) String() string {
	switch k {
	case ContentFile:
		return "file"
	case ContentDirectory:
		return "directory"
	default:
		return "unknown"
	}
}

// ContentEntry is either a file (Content set) or a
// directory (Entries set). Entries of a directory listing
// carry only Kind, Path and Name; their content must be
// fetched separately.
type ContentEntry struct {
	Kind    ContentKind
	Path    string
	Name    string
	Content []byte
	Entries []ContentEntry
}

// IsFile reports whether the entry is a file.
func (e ContentEntry) IsFile() bool {
	return e.Kind == ContentFile
}

// IsDirectory reports whether the entry is a directory.
func (e ContentEntry) IsDirectory() bool {
	return e.Kind == ContentDirectory
}

// NewPullRequest holds the fields of a pull request to
// open. Head is "owner:branch" for cross-repository
// requests.
type NewPullRequest struct {
	Title string
	Head  string
	Base  string
	Body  string
}

// PullRequest is an opened pull request.
type PullRequest struct {
	Number int
	URL    string
}
