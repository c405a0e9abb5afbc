package output

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"time"

	"github.com/sourcegraph/conc/pool"
)

// ProjectInfo is a read-only view of one project directory. It is
// recomputed from the filesystem on every listing and never cached.
type ProjectInfo struct {
	// Name is the project directory name under the output root.
	Name string `json:"name"`

	// FileCount is the number of files in the project, recursively.
	FileCount int `json:"fileCount"`

	// SizeBytes is the total size of all project files.
	SizeBytes int64 `json:"sizeBytes"`

	// SizeHuman is SizeBytes in binary units.
	SizeHuman string `json:"sizeHuman"`

	// Modified is the project directory's modification time.
	Modified time.Time `json:"modified"`
}

// FileInfo is a read-only view of one file inside a project.
type FileInfo struct {
	// Name is the file's base name.
	Name string `json:"name"`

	// RelativePath is the file's path relative to the project directory.
	RelativePath string `json:"relativePath"`

	// SizeBytes is the file size.
	SizeBytes int64 `json:"sizeBytes"`

	// SizeHuman is SizeBytes in binary units.
	SizeHuman string `json:"sizeHuman"`

	// Modified is the file's modification time.
	Modified time.Time `json:"modified"`
}

// ProjectStore manages named, isolated output directories under the root.
// Project names pass through filename sanitization, so traversal attempts
// like "../evil" collapse to plain directory names inside the root.
type ProjectStore struct {
	config *Config
	logger *slog.Logger
}

// NewProjectStore creates a project store with a validated copy of the
// configuration.
func NewProjectStore(config *Config, logger *slog.Logger) (*ProjectStore, error) {
	if config == nil {
		return nil, &ConfigurationError{Field: "config", Value: "nil", Hint: "provide an output configuration"}
	}
	validated, err := config.Validate()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ProjectStore{config: validated, logger: logger}, nil
}

// CreateProject creates the project directory if it does not exist and
// returns its absolute path. Creation is idempotent.
func (s *ProjectStore) CreateProject(name string) (string, error) {
	dir, err := s.projectDir(name)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, s.config.DirPerm); err != nil {
		return "", fmt.Errorf("failed to create project directory %q: %w", dir, err)
	}
	return dir, nil
}

// ListProjectFiles returns the project's files, recursively, filtered by a
// glob pattern on the base name and sorted newest-modified-first. A
// project that does not exist yields an empty list, not an error. An empty
// pattern matches everything.
func (s *ProjectStore) ListProjectFiles(name, pattern string) ([]FileInfo, error) {
	dir, err := s.projectDir(name)
	if err != nil {
		return nil, err
	}
	if pattern == "" {
		pattern = "*"
	}

	if _, err := os.Stat(dir); err != nil {
		if os.IsNotExist(err) {
			return []FileInfo{}, nil
		}
		return nil, fmt.Errorf("failed to read project directory %q: %w", dir, err)
	}

	files := make([]FileInfo, 0)
	walkErr := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		matched, err := filepath.Match(pattern, d.Name())
		if err != nil {
			return fmt.Errorf("invalid glob pattern %q: %w", pattern, err)
		}
		if !matched {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			rel = d.Name()
		}
		files = append(files, FileInfo{
			Name:         d.Name(),
			RelativePath: rel,
			SizeBytes:    info.Size(),
			SizeHuman:    humanSize(info.Size()),
			Modified:     info.ModTime(),
		})
		return nil
	})
	if walkErr != nil {
		return nil, walkErr
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].Modified.After(files[j].Modified)
	})
	return files, nil
}

// DeleteProjectFile removes one file from a project. The filename is
// sanitized before lookup, so a traversal attempt resolves to a sanitized
// and most likely missing name and safely reports false. Missing files
// return false without an error; directories are refused.
func (s *ProjectStore) DeleteProjectFile(name, filename string) (bool, error) {
	dir, err := s.projectDir(name)
	if err != nil {
		return false, err
	}

	target := filepath.Join(dir, SanitizeFilename(filename))
	if err := ValidateContained(target, s.config.RootDir); err != nil {
		return false, err
	}

	info, err := os.Lstat(target)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to stat %q: %w", target, err)
	}
	if info.IsDir() {
		return false, &InvalidArgumentError{
			Reason: fmt.Sprintf("%q is a directory, not a file", filepath.Base(target)),
		}
	}

	if err := os.Remove(target); err != nil {
		return false, fmt.Errorf("failed to delete %q: %w", target, err)
	}
	return true, nil
}

// ListProjects returns every project under the root with per-project file
// counts and total sizes, newest-modified-first. Hidden directories (dot
// prefix) are excluded. Aggregation runs on a bounded worker pool since it
// walks one subtree per project.
func (s *ProjectStore) ListProjects(ctx context.Context) ([]ProjectInfo, error) {
	entries, err := os.ReadDir(s.config.RootDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read output root %q: %w", s.config.RootDir, err)
	}

	dirs := make([]fs.DirEntry, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() || entry.Name()[0] == '.' {
			continue
		}
		dirs = append(dirs, entry)
	}

	projects := make([]ProjectInfo, len(dirs))
	workers := min(max(runtime.NumCPU()*2, 4), 32)
	p := pool.New().WithMaxGoroutines(workers).WithContext(ctx)
	for i, entry := range dirs {
		p.Go(func(ctx context.Context) error {
			info, err := entry.Info()
			if err != nil {
				return err
			}
			count, size, err := aggregateDir(filepath.Join(s.config.RootDir, entry.Name()))
			if err != nil {
				return err
			}
			projects[i] = ProjectInfo{
				Name:      entry.Name(),
				FileCount: count,
				SizeBytes: size,
				SizeHuman: humanSize(size),
				Modified:  info.ModTime(),
			}
			return nil
		})
	}
	if err := p.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(projects, func(i, j int) bool {
		return projects[i].Modified.After(projects[j].Modified)
	})
	return projects, nil
}

// projectDir resolves a project name to its directory under the root,
// falling back to the root itself when the name is empty and project
// folders are the caller's concern.
func (s *ProjectStore) projectDir(name string) (string, error) {
	if name == "" {
		name = s.config.ProjectName
	}
	if name == "" {
		return s.config.RootDir, nil
	}
	dir := filepath.Join(s.config.RootDir, SanitizeFilename(name))
	if err := ValidateContained(dir, s.config.RootDir); err != nil {
		return "", err
	}
	return dir, nil
}

// aggregateDir walks a project subtree and totals file count and size.
func aggregateDir(dir string) (int, int64, error) {
	var count int
	var size int64
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		count++
		size += info.Size()
		return nil
	})
	if err != nil {
		return 0, 0, err
	}
	return count, size, nil
}
