package zipr

import (
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"strings"
)

// ErrInsecurePath is returned by Unzip for an archive entry whose name would resolve outside the destination
// directory ("zip slip"): an absolute name, a name with ".." segments, or one carrying backslash separators.
//
// The whole call fails before any such entry is written.
var ErrInsecurePath = errors.New("insecure entry path")

// secureJoin resolves the archive entry name under dir, or fails with ErrInsecurePath if the name would escape dir.
//
// Entry names use forward slashes; the trailing slash marking a directory entry is ignored here.
func secureJoin(dir, name string) (string, error) {
	p := strings.TrimSuffix(name, "/")
	if p == "" || path.IsAbs(name) || strings.Contains(name, `\`) || !filepath.IsLocal(filepath.FromSlash(p)) {
		return "", fmt.Errorf("%w: %q", ErrInsecurePath, name)
	}

	return filepath.Join(dir, filepath.FromSlash(p)), nil
}
