package zipr

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

// entry is one archive member staged by collect, in the order it will appear in the archive.
type entry struct {
	// path is the filesystem path the entry comes from.
	path string
	// name is the archive-relative name, forward-slash-separated; directory names end with "/".
	name string
	dir  bool
	mode fs.FileMode
	// modified becomes the entry's MS-DOS modification time in the archive.
	modified time.Time
}

// collect walks the given source paths into the ordered entry list of the archive to be written.
//
// A file source becomes a single entry under its base name. A directory source becomes a "<base>/" directory entry
// followed by every descendant in lexical walk order: directories as "<prefix>/" entries, files under their full
// relative names. An empty directory thus yields exactly its own "<base>/" entry. File symlinks are followed once via
// os.Stat; directory symlinks are not descended, so a symlink cycle cannot loop.
//
// A missing source fails with an error matching fs.ErrNotExist, an unreadable one with fs.ErrPermission; either way
// the whole collection is abandoned.
func collect(sources []string) ([]entry, error) {
	entries := make([]entry, 0, len(sources))

	for _, src := range sources {
		fi, err := os.Stat(src)
		if err != nil {
			return nil, fmt.Errorf(`describe source "%s" error: %w`, src, err)
		}

		if !fi.IsDir() {
			if !fi.Mode().IsRegular() {
				return nil, fmt.Errorf(`unsupported source "%s": neither regular file nor directory`, src)
			}

			entries = append(entries, entry{path: src, name: filepath.Base(src), mode: fi.Mode(), modified: fi.ModTime()})
			continue
		}

		// the root directory itself is the first entry unless its base name is meaningless ("." or a separator).
		prefix := ""
		if base := filepath.Base(filepath.Clean(src)); base != "." && base != string(filepath.Separator) {
			prefix = base + "/"
			entries = append(entries, entry{path: src, name: prefix, dir: true, mode: fi.Mode(), modified: fi.ModTime()})
		}

		if err = filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return fmt.Errorf(`walk directory "%s" error: %w`, src, err)
			}

			rel, err := filepath.Rel(src, path)
			if err != nil || rel == "." {
				return err
			}
			name := prefix + filepath.ToSlash(rel)

			switch {
			case d.IsDir():
				fi, err := d.Info()
				if err != nil {
					return fmt.Errorf(`describe directory "%s" error: %w`, path, err)
				}

				entries = append(entries, entry{path: path, name: name + "/", dir: true, mode: fi.Mode(), modified: fi.ModTime()})

			case d.Type()&fs.ModeSymlink != 0:
				// only symlinks whose target is a regular file are included; WalkDir never descends
				// symlinks to directories.
				fi, err := os.Stat(path)
				if err != nil {
					return fmt.Errorf(`describe symlink "%s" error: %w`, path, err)
				}
				if fi.Mode().IsRegular() {
					entries = append(entries, entry{path: path, name: name, mode: fi.Mode(), modified: fi.ModTime()})
				}

			case d.Type().IsRegular():
				fi, err := d.Info()
				if err != nil {
					return fmt.Errorf(`describe file "%s" error: %w`, path, err)
				}

				entries = append(entries, entry{path: path, name: name, mode: fi.Mode(), modified: fi.ModTime()})
			}

			return nil
		}); err != nil {
			return nil, err
		}
	}

	return entries, nil
}
