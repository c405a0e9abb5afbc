package output

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Filename sanitization limits.
const (
	// maxFilenameLength is the longest sanitized filename in bytes.
	maxFilenameLength = 255

	// placeholderFilename replaces names that sanitize down to nothing.
	placeholderFilename = "unnamed"

	// reservedSuffix is appended to reserved device names.
	reservedSuffix = "_file"
)

// reservedNames are Windows device names that cannot be used as filenames.
// They are screened on every platform so written files stay portable.
var reservedNames = map[string]struct{}{
	"CON": {}, "PRN": {}, "AUX": {}, "NUL": {},
	"COM1": {}, "COM2": {}, "COM3": {}, "COM4": {}, "COM5": {},
	"COM6": {}, "COM7": {}, "COM8": {}, "COM9": {},
	"LPT1": {}, "LPT2": {}, "LPT3": {}, "LPT4": {}, "LPT5": {},
	"LPT6": {}, "LPT7": {}, "LPT8": {}, "LPT9": {},
}

// SanitizeFilename makes a caller-chosen name safe to use as a single path
// component. It never fails and never returns an empty string: names that
// sanitize down to nothing become a fixed placeholder. Sanitization is
// idempotent, so a sanitized name passes through unchanged.
//
// It strips null bytes, control characters, path separators, the
// characters   : * ? " < > |   and every ".." sequence, trims surrounding
// whitespace and dots, renames reserved device names, and truncates to
// maxFilenameLength bytes while preserving the extension.
func SanitizeFilename(name string) string {
	cleaned := strings.Map(func(r rune) rune {
		switch {
		case r < 0x20 || r == 0x7f:
			return -1
		case strings.ContainsRune(`/\:*?"<>|`, r):
			return -1
		default:
			return r
		}
	}, name)

	for strings.Contains(cleaned, "..") {
		cleaned = strings.ReplaceAll(cleaned, "..", "")
	}

	cleaned = strings.Trim(strings.TrimSpace(cleaned), " .")
	if cleaned == "" {
		return placeholderFilename
	}

	cleaned = renameReserved(cleaned)
	cleaned = truncateFilename(cleaned, maxFilenameLength)

	// Truncation can expose a trailing dot; trim once more.
	cleaned = strings.Trim(cleaned, " .")
	if cleaned == "" {
		return placeholderFilename
	}
	return cleaned
}

// renameReserved appends a suffix when the base name (extension ignored,
// case-insensitive) matches a reserved device name.
func renameReserved(name string) string {
	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)
	if _, reserved := reservedNames[strings.ToUpper(base)]; reserved {
		return base + reservedSuffix + ext
	}
	return name
}

// truncateFilename cuts the name to at most maxLen bytes, keeping the
// extension when it fits and cutting on a rune boundary.
func truncateFilename(name string, maxLen int) string {
	if len(name) <= maxLen {
		return name
	}
	ext := filepath.Ext(name)
	if len(ext) >= maxLen {
		return cutRunes(name, maxLen)
	}
	base := strings.TrimSuffix(name, ext)
	return cutRunes(base, maxLen-len(ext)) + ext
}

// cutRunes returns the longest prefix of s that fits in maxBytes without
// splitting a rune.
func cutRunes(s string, maxBytes int) string {
	if len(s) <= maxBytes {
		return s
	}
	cut := 0
	for i := range s {
		if i > maxBytes {
			break
		}
		cut = i
	}
	return s[:cut]
}

// ValidateContained verifies that path, resolved against root, stays inside
// root. Both sides are canonicalized (absolute, symlinks resolved), so the
// classic attacks are rejected: ".." traversal, absolute paths outside
// root, and symlinks pointing out of root. Canonicalization failures are
// surfaced as SecurityErrors, never ignored.
func ValidateContained(path, root string) error {
	_, err := containedPath(path, root)
	return err
}

// ResolveSafe sanitizes the final path component, validates containment,
// and returns the canonical absolute path. When checkPerm is set, the
// nearest existing ancestor of the target's parent directory is probed for
// read and write access, failing with a PermissionError that names the
// directory and its mode bits.
func ResolveSafe(path, root string, checkPerm bool) (string, error) {
	dir, leaf := filepath.Split(path)
	candidate := filepath.Join(dir, SanitizeFilename(leaf))

	resolved, err := containedPath(candidate, root)
	if err != nil {
		return "", err
	}

	if checkPerm {
		parent := nearestExisting(filepath.Dir(resolved))
		if err := checkDirAccess(parent); err != nil {
			return "", err
		}
	}
	return resolved, nil
}

// containedPath canonicalizes root and candidate and returns the canonical
// candidate when it is contained in root.
func containedPath(path, root string) (string, error) {
	if root == "" {
		return "", &SecurityError{Path: path, Root: root, Reason: "output root is not configured"}
	}

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", &SecurityError{Path: path, Root: root, Reason: "cannot resolve root", Err: err}
	}
	canonRoot, err := filepath.EvalSymlinks(absRoot)
	if err != nil {
		return "", &SecurityError{Path: path, Root: root, Reason: "cannot canonicalize root", Err: err}
	}

	var candidate string
	if filepath.IsAbs(path) {
		// Absolute paths must already be nested under the root.
		cleaned := filepath.Clean(path)
		if cleaned != absRoot && !strings.HasPrefix(cleaned, absRoot+string(filepath.Separator)) &&
			cleaned != canonRoot && !strings.HasPrefix(cleaned, canonRoot+string(filepath.Separator)) {
			return "", &SecurityError{Path: path, Root: root, Reason: "absolute path is not under the output root"}
		}
		candidate = cleaned
	} else {
		candidate = filepath.Join(canonRoot, path)
	}

	canonCandidate, err := canonicalizePath(candidate)
	if err != nil {
		return "", &SecurityError{Path: path, Root: root, Reason: "cannot canonicalize path", Err: err}
	}

	rel, err := filepath.Rel(canonRoot, canonCandidate)
	if err != nil {
		return "", &SecurityError{Path: path, Root: root, Reason: "cannot compute relative path", Err: err}
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", &SecurityError{Path: path, Root: root, Reason: "resolved path escapes the output root"}
	}
	return canonCandidate, nil
}

// canonicalizePath resolves symlinks in the path. The leaf (and any missing
// ancestors) may not exist yet; symlinks are resolved for the longest
// existing prefix and the remaining components are rejoined.
func canonicalizePath(path string) (string, error) {
	resolved, err := filepath.EvalSymlinks(path)
	if err == nil {
		return resolved, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return "", err
	}

	cleaned := filepath.Clean(path)
	parent := filepath.Dir(cleaned)
	if parent == cleaned {
		return "", err
	}
	canonParent, perr := canonicalizePath(parent)
	if perr != nil {
		return "", perr
	}
	return filepath.Join(canonParent, filepath.Base(cleaned)), nil
}

// nearestExisting walks up from dir to the first ancestor that exists.
func nearestExisting(dir string) string {
	for {
		if _, err := os.Stat(dir); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return dir
		}
		dir = parent
	}
}

// checkDirAccess probes a directory for read and write access by the
// current process. Mode bits from the directory are included in the error
// so the fix is a single chmod away.
func checkDirAccess(dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		return &PermissionError{Dir: dir, Need: "read+write", Err: err}
	}

	f, err := os.Open(dir)
	if err != nil {
		return &PermissionError{Dir: dir, Mode: info.Mode(), Need: "read", Err: err}
	}
	_ = f.Close()

	probe, err := os.CreateTemp(dir, ".perm-probe-*")
	if err != nil {
		return &PermissionError{Dir: dir, Mode: info.Mode(), Need: "write", Err: err}
	}
	name := probe.Name()
	_ = probe.Close()
	_ = os.Remove(name)

	return nil
}
