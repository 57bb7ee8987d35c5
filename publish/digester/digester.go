// Package digester computes git object identifiers
// locally so uploads can be checked against what the
// provider stored.
package digester

import (
	"crypto/sha1" //nolint:gosec // git object ids are sha1
	"encoding/hex"
	"io"
	"strconv"
)

// BlobID returns the git blob object id of content, the
// hex sha1 of "blob <len>\x00<content>".
func BlobID(content []byte) string {
	ha := sha1.New() //nolint:gosec // git object ids are sha1

	writeHeader(ha, int64(len(content)))
	ha.Write(content)

	return hex.EncodeToString(ha.Sum(nil))
}

// VerifyBlob reports whether sha is the blob id of
// content.
func VerifyBlob(content []byte, sha string) bool {
	return BlobID(content) == sha
}

func writeHeader(w io.Writer, size int64) {
	_, _ = io.WriteString(
		w, "blob "+strconv.FormatInt(size, 10)+"\x00",
	)
}
