// Package sandbox confines caller-supplied paths to a single root directory.
package sandbox

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// ErrTraversal matches every *TraversalError via errors.Is.
var ErrTraversal = errors.New("path traversal blocked")

// TraversalError reports a raw path that would leave the sandbox root.
type TraversalError struct {
	Path   string
	Reason string
}

func (e *TraversalError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("Path traversal blocked: %s", e.Path)
	}
	return fmt.Sprintf("Path traversal blocked: %s (%s)", e.Path, e.Reason)
}

func (e *TraversalError) Is(target error) bool {
	return target == ErrTraversal
}

// Path is the verification result for one raw input. It is computed per
// request and never cached: files and symlinks may change between calls.
type Path struct {
	Raw        string
	Resolved   string
	WithinRoot bool
}

// Resolver resolves raw paths against a canonical root.
type Resolver struct {
	root string
}

// NewResolver canonicalizes root (creating it when missing) and returns a
// resolver bound to it.
func NewResolver(root string) (*Resolver, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return nil, fmt.Errorf("sandbox root is required")
	}
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("create sandbox root: %w", err)
	}
	canonical, err := canonicalize(root)
	if err != nil {
		return nil, fmt.Errorf("resolve sandbox root: %w", err)
	}
	return &Resolver{root: canonical}, nil
}

// Root returns the canonical sandbox root.
func (r *Resolver) Root() string {
	return r.root
}

// Resolve verifies rawPath against the resolver's root.
func (r *Resolver) Resolve(rawPath string) (Path, error) {
	return Resolve(r.root, rawPath)
}

// Resolve joins root and rawPath, canonicalizes the result (".", ".." and
// symlinks) and checks that it stays equal to or below root using path
// segments, so "/sandboxevil" never matches root "/sandbox".
func Resolve(root, rawPath string) (Path, error) {
	result := Path{Raw: rawPath}

	if strings.TrimSpace(rawPath) == "" {
		return result, &TraversalError{Path: rawPath, Reason: "empty path"}
	}
	if strings.ContainsRune(rawPath, 0) {
		return result, &TraversalError{Path: rawPath, Reason: "invalid character"}
	}
	if filepath.IsAbs(rawPath) || strings.HasPrefix(rawPath, "/") || strings.HasPrefix(rawPath, `\`) || filepath.VolumeName(rawPath) != "" {
		return result, &TraversalError{Path: rawPath, Reason: "absolute paths are not allowed"}
	}

	canonicalRoot, err := canonicalize(root)
	if err != nil {
		return result, fmt.Errorf("resolve sandbox root: %w", err)
	}

	resolved, err := canonicalize(filepath.Join(canonicalRoot, rawPath))
	if err != nil {
		slog.Debug("sandbox path not resolvable", "path", rawPath, "error", err)
		return result, &TraversalError{Path: rawPath, Reason: "cannot resolve path"}
	}
	result.Resolved = resolved

	if !within(canonicalRoot, resolved) {
		return result, &TraversalError{Path: rawPath, Reason: "resolves outside sandbox root"}
	}
	result.WithinRoot = true
	return result, nil
}

// within reports whether target equals root or lies below it, compared
// segment by segment.
func within(root, target string) bool {
	rel, err := filepath.Rel(root, target)
	if err != nil {
		return false
	}
	if rel == "." {
		return true
	}
	first := strings.SplitN(filepath.ToSlash(rel), "/", 2)[0]
	return first != ".." && !filepath.IsAbs(rel)
}

// canonicalize returns an absolute, cleaned path with symlinks resolved.
// Paths that do not exist yet (a file about to be written) are resolved
// through their nearest existing ancestor.
func canonicalize(path string) (string, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	absPath = filepath.Clean(absPath)

	if resolved, err := filepath.EvalSymlinks(absPath); err == nil {
		return resolved, nil
	}

	dir := absPath
	for {
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		if _, statErr := os.Lstat(dir); statErr == nil {
			resolved, err := filepath.EvalSymlinks(dir)
			if err != nil {
				return "", err
			}
			rel, err := filepath.Rel(dir, absPath)
			if err != nil {
				return "", err
			}
			if rel == "." {
				return resolved, nil
			}
			return filepath.Join(resolved, rel), nil
		}
		dir = parent
	}
	return absPath, nil
}
