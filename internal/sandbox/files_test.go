package sandbox

import (
	"os"
	"path/filepath"
	"testing"
)

func testFileService(t *testing.T) (*FileService, string) {
	t.Helper()
	runtime := newFakeRuntime()
	cfg := Config{BaseDir: t.TempDir(), HostPortRangeStart: 40000, HostPortRangeEnd: 40010}.WithDefaults()
	m, err := NewManager(cfg, runtime, nil)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	sessionID := "sess-1"
	workspace := m.WorkspaceRoot(sessionID)
	if err := os.MkdirAll(workspace, 0o755); err != nil {
		t.Fatalf("mkdir workspace: %v", err)
	}
	return NewFileService(m, nil), sessionID
}

func TestFileServiceWriteReadRoundTrip(t *testing.T) {
	fs, sessionID := testFileService(t)

	info, err := fs.WriteFile(sessionID, "notes.txt", "hello world", false, false)
	if err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if !info.Created {
		t.Fatalf("expected Created=true for a new file")
	}

	got, err := fs.ReadFile(sessionID, "notes.txt")
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if got.Content != "hello world" {
		t.Fatalf("unexpected content: %q", got.Content)
	}
}

func TestFileServiceWriteExistingWithoutFlagsFails(t *testing.T) {
	fs, sessionID := testFileService(t)
	if _, err := fs.WriteFile(sessionID, "a.txt", "one", false, false); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, err := fs.WriteFile(sessionID, "a.txt", "two", false, false); err != ErrFileExists {
		t.Fatalf("expected ErrFileExists, got %v", err)
	}
	if _, err := fs.WriteFile(sessionID, "a.txt", "two", true, false); err != nil {
		t.Fatalf("overwrite should succeed: %v", err)
	}
	got, err := fs.ReadFile(sessionID, "a.txt")
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if got.Content != "two" {
		t.Fatalf("expected overwritten content, got %q", got.Content)
	}
}

func TestFileServiceAppend(t *testing.T) {
	fs, sessionID := testFileService(t)
	if _, err := fs.WriteFile(sessionID, "log.txt", "one\n", false, false); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, err := fs.WriteFile(sessionID, "log.txt", "two\n", false, true); err != nil {
		t.Fatalf("append WriteFile: %v", err)
	}
	got, err := fs.ReadFile(sessionID, "log.txt")
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if got.Content != "one\ntwo\n" {
		t.Fatalf("unexpected appended content: %q", got.Content)
	}
}

func TestFileServicePathEscapeRejected(t *testing.T) {
	fs, sessionID := testFileService(t)
	if _, err := fs.WriteFile(sessionID, "../../etc/passwd", "pwned", true, false); err != ErrPathEscapesWorkspace {
		t.Fatalf("expected ErrPathEscapesWorkspace, got %v", err)
	}
	if _, err := fs.ReadFile(sessionID, "../outside.txt"); err != ErrPathEscapesWorkspace {
		t.Fatalf("expected ErrPathEscapesWorkspace on read, got %v", err)
	}
}

func TestFileServiceReadMissingFile(t *testing.T) {
	fs, sessionID := testFileService(t)
	if _, err := fs.ReadFile(sessionID, "missing.txt"); err != ErrFileNotFound {
		t.Fatalf("expected ErrFileNotFound, got %v", err)
	}
}

func TestFileServiceInvalidJSONRollsBack(t *testing.T) {
	fs, sessionID := testFileService(t)

	if _, err := fs.WriteFile(sessionID, "config.json", `{"valid":true}`, false, false); err != nil {
		t.Fatalf("initial WriteFile: %v", err)
	}

	_, err := fs.WriteFile(sessionID, "config.json", "{not json", true, false)
	if err == nil {
		t.Fatalf("expected invalid JSON write to fail validation")
	}

	got, readErr := fs.ReadFile(sessionID, "config.json")
	if readErr != nil {
		t.Fatalf("ReadFile after rollback: %v", readErr)
	}
	if got.Content != `{"valid":true}` {
		t.Fatalf("expected rollback to restore previous content, got %q", got.Content)
	}
}

func TestFileServiceListTreeDepthAndHidden(t *testing.T) {
	fs, sessionID := testFileService(t)
	if _, err := fs.WriteFile(sessionID, "a.txt", "a", false, false); err != nil {
		t.Fatalf("WriteFile a: %v", err)
	}
	if _, err := fs.WriteFile(sessionID, "dir/b.txt", "b", false, false); err != nil {
		t.Fatalf("WriteFile dir/b: %v", err)
	}
	if _, err := fs.WriteFile(sessionID, ".hidden", "h", false, false); err != nil {
		t.Fatalf("WriteFile .hidden: %v", err)
	}

	tree, err := fs.ListTree(sessionID, "", 0, 0, false)
	if err != nil {
		t.Fatalf("ListTree: %v", err)
	}
	var names []string
	for _, child := range tree.Children {
		names = append(names, child.Name)
	}
	for _, hidden := range names {
		if hidden == ".hidden" {
			t.Fatalf("expected hidden file to be excluded by default, got children %v", names)
		}
	}

	treeWithHidden, err := fs.ListTree(sessionID, "", 0, 0, true)
	if err != nil {
		t.Fatalf("ListTree (include hidden): %v", err)
	}
	found := false
	for _, child := range treeWithHidden.Children {
		if child.Name == ".hidden" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected .hidden to appear when includeHidden=true")
	}
}

func TestFileServiceListTreeTooLarge(t *testing.T) {
	fs, sessionID := testFileService(t)
	for i := 0; i < 5; i++ {
		name := filepath.Join("many", string(rune('a'+i))+".txt")
		if _, err := fs.WriteFile(sessionID, name, "x", false, false); err != nil {
			t.Fatalf("WriteFile %s: %v", name, err)
		}
	}
	if _, err := fs.ListTree(sessionID, "", 0, 3, false); err != ErrDirectoryTooLarge {
		t.Fatalf("expected ErrDirectoryTooLarge, got %v", err)
	}
}
