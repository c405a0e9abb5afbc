package output

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func newTestStore(t *testing.T) (*ProjectStore, string) {
	t.Helper()
	root := t.TempDir()
	cfg := DefaultConfig()
	cfg.RootDir = root
	store, err := NewProjectStore(cfg, nil)
	if err != nil {
		t.Fatalf("NewProjectStore() unexpected error: %v", err)
	}
	return store, root
}

func writeProjectFile(t *testing.T, root, project, name, content string) string {
	t.Helper()
	dir := filepath.Join(root, project)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("failed to create project dir: %v", err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}
	return path
}

func TestCreateProject(t *testing.T) {
	store, root := newTestStore(t)

	dir, err := store.CreateProject("research")
	if err != nil {
		t.Fatalf("CreateProject() unexpected error: %v", err)
	}
	if dir != filepath.Join(root, "research") {
		t.Errorf("CreateProject() = %q, want %q", dir, filepath.Join(root, "research"))
	}

	info, err := os.Stat(dir)
	if err != nil {
		t.Fatalf("project directory missing: %v", err)
	}
	if !info.IsDir() {
		t.Error("project path is not a directory")
	}

	// Idempotent: creating again succeeds and returns the same path.
	again, err := store.CreateProject("research")
	if err != nil {
		t.Fatalf("CreateProject() second call unexpected error: %v", err)
	}
	if again != dir {
		t.Errorf("CreateProject() second call = %q, want %q", again, dir)
	}
}

func TestCreateProject_TraversalSanitized(t *testing.T) {
	store, root := newTestStore(t)

	// "../evil" sanitizes to "evil" and lands under the root, not above it.
	dir, err := store.CreateProject("../evil")
	if err != nil {
		t.Fatalf("CreateProject() unexpected error: %v", err)
	}
	if dir != filepath.Join(root, "evil") {
		t.Errorf("CreateProject(../evil) = %q, want %q", dir, filepath.Join(root, "evil"))
	}
	if _, err := os.Stat(filepath.Join(root, "evil")); err != nil {
		t.Errorf("sanitized project directory missing: %v", err)
	}
	if _, err := os.Stat(filepath.Join(filepath.Dir(root), "evil")); !os.IsNotExist(err) {
		t.Error("directory must not be created outside the root")
	}
}

func TestListProjectFiles(t *testing.T) {
	store, root := newTestStore(t)
	writeProjectFile(t, root, "research", "quotes.csv", "id\n1\n")
	writeProjectFile(t, root, "research", "history.json", "{}")
	writeProjectFile(t, root, "research", "notes.csv", "id\n2\n")

	t.Run("empty pattern matches everything", func(t *testing.T) {
		files, err := store.ListProjectFiles("research", "")
		if err != nil {
			t.Fatalf("ListProjectFiles() unexpected error: %v", err)
		}
		if len(files) != 3 {
			t.Errorf("len = %d, want 3", len(files))
		}
	})

	t.Run("glob filters by base name", func(t *testing.T) {
		files, err := store.ListProjectFiles("research", "*.csv")
		if err != nil {
			t.Fatalf("ListProjectFiles() unexpected error: %v", err)
		}
		if len(files) != 2 {
			t.Fatalf("len = %d, want 2", len(files))
		}
		for _, f := range files {
			if !strings.HasSuffix(f.Name, ".csv") {
				t.Errorf("file %q does not match pattern", f.Name)
			}
		}
	})

	t.Run("no matches yields empty list", func(t *testing.T) {
		files, err := store.ListProjectFiles("research", "*.parquet")
		if err != nil {
			t.Fatalf("ListProjectFiles() unexpected error: %v", err)
		}
		if len(files) != 0 {
			t.Errorf("len = %d, want 0", len(files))
		}
	})
}

func TestListProjectFiles_MissingProject(t *testing.T) {
	store, _ := newTestStore(t)

	files, err := store.ListProjectFiles("does-not-exist", "*")
	if err != nil {
		t.Fatalf("ListProjectFiles() unexpected error: %v", err)
	}
	if files == nil {
		t.Fatal("ListProjectFiles() should return empty slice, not nil")
	}
	if len(files) != 0 {
		t.Errorf("len = %d, want 0", len(files))
	}
}

func TestListProjectFiles_SortedNewestFirst(t *testing.T) {
	store, root := newTestStore(t)
	older := writeProjectFile(t, root, "research", "older.csv", "a")
	newer := writeProjectFile(t, root, "research", "newer.csv", "b")

	now := time.Now()
	if err := os.Chtimes(older, now.Add(-2*time.Hour), now.Add(-2*time.Hour)); err != nil {
		t.Fatalf("failed to set mtime: %v", err)
	}
	if err := os.Chtimes(newer, now, now); err != nil {
		t.Fatalf("failed to set mtime: %v", err)
	}

	files, err := store.ListProjectFiles("research", "*")
	if err != nil {
		t.Fatalf("ListProjectFiles() unexpected error: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("len = %d, want 2", len(files))
	}
	if files[0].Name != "newer.csv" {
		t.Errorf("first file = %q, want newest", files[0].Name)
	}
	if files[1].Name != "older.csv" {
		t.Errorf("second file = %q, want oldest", files[1].Name)
	}
}

func TestListProjectFiles_Recursive(t *testing.T) {
	store, root := newTestStore(t)
	writeProjectFile(t, root, "research", "top.csv", "a")
	writeProjectFile(t, root, filepath.Join("research", "nested"), "deep.csv", "b")

	files, err := store.ListProjectFiles("research", "*.csv")
	if err != nil {
		t.Fatalf("ListProjectFiles() unexpected error: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("len = %d, want 2 (recursive)", len(files))
	}

	var sawNested bool
	for _, f := range files {
		if f.RelativePath == filepath.Join("nested", "deep.csv") {
			sawNested = true
		}
	}
	if !sawNested {
		t.Error("nested file should carry its project-relative path")
	}
}

func TestDeleteProjectFile(t *testing.T) {
	store, root := newTestStore(t)
	writeProjectFile(t, root, "research", "quotes.csv", "data")

	deleted, err := store.DeleteProjectFile("research", "quotes.csv")
	if err != nil {
		t.Fatalf("DeleteProjectFile() unexpected error: %v", err)
	}
	if !deleted {
		t.Error("DeleteProjectFile() = false, want true")
	}
	if _, err := os.Stat(filepath.Join(root, "research", "quotes.csv")); !os.IsNotExist(err) {
		t.Error("file should be gone after delete")
	}

	// Deleting again reports false, not an error.
	deleted, err = store.DeleteProjectFile("research", "quotes.csv")
	if err != nil {
		t.Fatalf("DeleteProjectFile() second call unexpected error: %v", err)
	}
	if deleted {
		t.Error("DeleteProjectFile() second call = true, want false")
	}
}

func TestDeleteProjectFile_Missing(t *testing.T) {
	store, root := newTestStore(t)
	writeProjectFile(t, root, "research", "keep.csv", "data")

	deleted, err := store.DeleteProjectFile("research", "never-existed.csv")
	if err != nil {
		t.Fatalf("DeleteProjectFile() unexpected error: %v", err)
	}
	if deleted {
		t.Error("DeleteProjectFile() = true for missing file, want false")
	}
}

func TestDeleteProjectFile_RefusesDirectory(t *testing.T) {
	store, root := newTestStore(t)
	if err := os.MkdirAll(filepath.Join(root, "research", "subdir"), 0o755); err != nil {
		t.Fatalf("failed to create dir: %v", err)
	}

	_, err := store.DeleteProjectFile("research", "subdir")
	if err == nil {
		t.Fatal("DeleteProjectFile() expected error for directory")
	}
	if !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("error = %v, want ErrInvalidArgument", err)
	}
	if !strings.Contains(err.Error(), "directory") {
		t.Errorf("error %q should name the directory refusal", err.Error())
	}

	// The directory is untouched.
	if _, statErr := os.Stat(filepath.Join(root, "research", "subdir")); statErr != nil {
		t.Errorf("directory should still exist: %v", statErr)
	}
}

func TestDeleteProjectFile_TraversalSanitized(t *testing.T) {
	store, root := newTestStore(t)
	if err := os.MkdirAll(filepath.Join(root, "research"), 0o755); err != nil {
		t.Fatalf("failed to create project dir: %v", err)
	}
	// A file one level above the project that a traversal would target.
	victim := filepath.Join(root, "victim.csv")
	if err := os.WriteFile(victim, []byte("data"), 0o644); err != nil {
		t.Fatalf("failed to write victim file: %v", err)
	}

	// The filename sanitizes to "victim.csv" and is looked up inside the
	// project, where it does not exist.
	deleted, err := store.DeleteProjectFile("research", "../victim.csv")
	if err != nil {
		t.Fatalf("DeleteProjectFile() unexpected error: %v", err)
	}
	if deleted {
		t.Error("traversal filename should not delete anything")
	}
	if _, statErr := os.Stat(victim); statErr != nil {
		t.Errorf("file outside the project should survive: %v", statErr)
	}
}

func TestListProjects(t *testing.T) {
	store, root := newTestStore(t)
	writeProjectFile(t, root, "alpha", "a1.csv", "aaaa")
	writeProjectFile(t, root, "alpha", "a2.csv", "bbbb")
	writeProjectFile(t, root, "beta", "b1.json", "cc")

	// Hidden directories and loose files at the root are not projects.
	if err := os.MkdirAll(filepath.Join(root, ".hidden"), 0o755); err != nil {
		t.Fatalf("failed to create hidden dir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(root, "loose.txt"), []byte("x"), 0o644); err != nil {
		t.Fatalf("failed to write loose file: %v", err)
	}

	projects, err := store.ListProjects(context.Background())
	if err != nil {
		t.Fatalf("ListProjects() unexpected error: %v", err)
	}
	if len(projects) != 2 {
		t.Fatalf("len = %d, want 2", len(projects))
	}

	byName := make(map[string]ProjectInfo, len(projects))
	for _, p := range projects {
		byName[p.Name] = p
	}

	alpha, ok := byName["alpha"]
	if !ok {
		t.Fatal("project alpha missing from listing")
	}
	if alpha.FileCount != 2 {
		t.Errorf("alpha FileCount = %d, want 2", alpha.FileCount)
	}
	if alpha.SizeBytes != 8 {
		t.Errorf("alpha SizeBytes = %d, want 8", alpha.SizeBytes)
	}
	if alpha.SizeHuman == "" {
		t.Error("alpha SizeHuman should not be empty")
	}

	beta, ok := byName["beta"]
	if !ok {
		t.Fatal("project beta missing from listing")
	}
	if beta.FileCount != 1 {
		t.Errorf("beta FileCount = %d, want 1", beta.FileCount)
	}
	if beta.SizeBytes != 2 {
		t.Errorf("beta SizeBytes = %d, want 2", beta.SizeBytes)
	}
}

func TestListProjects_SortedNewestFirst(t *testing.T) {
	store, root := newTestStore(t)
	writeProjectFile(t, root, "older", "a.csv", "x")
	writeProjectFile(t, root, "newer", "b.csv", "y")

	now := time.Now()
	if err := os.Chtimes(filepath.Join(root, "older"), now.Add(-2*time.Hour), now.Add(-2*time.Hour)); err != nil {
		t.Fatalf("failed to set mtime: %v", err)
	}
	if err := os.Chtimes(filepath.Join(root, "newer"), now, now); err != nil {
		t.Fatalf("failed to set mtime: %v", err)
	}

	projects, err := store.ListProjects(context.Background())
	if err != nil {
		t.Fatalf("ListProjects() unexpected error: %v", err)
	}
	if len(projects) != 2 {
		t.Fatalf("len = %d, want 2", len(projects))
	}
	if projects[0].Name != "newer" {
		t.Errorf("first project = %q, want newest", projects[0].Name)
	}
}

func TestListProjects_EmptyRoot(t *testing.T) {
	store, _ := newTestStore(t)

	projects, err := store.ListProjects(context.Background())
	if err != nil {
		t.Fatalf("ListProjects() unexpected error: %v", err)
	}
	if len(projects) != 0 {
		t.Errorf("len = %d, want 0", len(projects))
	}
}
