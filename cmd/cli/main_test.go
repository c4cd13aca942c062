package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nickyhof/viewdb/core"
)

// execute runs the CLI once against baseDir and returns its output.
func execute(t *testing.T, baseDir, stdin string, args ...string) (string, error) {
	t.Helper()

	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(append([]string{"--baseDir", baseDir, "--database", "app"}, args...))

	err := cmd.Execute()
	return out.String(), err
}

func mustExecute(t *testing.T, baseDir string, args ...string) string {
	t.Helper()
	out, err := execute(t, baseDir, "", args...)
	if err != nil {
		t.Fatalf("viewdb %s failed: %v", strings.Join(args, " "), err)
	}
	return out
}

func createActiveUsers(t *testing.T, baseDir string) {
	t.Helper()
	out := mustExecute(t, baseDir, "create", "ActiveUsers",
		"--query", "SELECT FROM User WHERE active = true",
		"--strategy", "live",
		"--watch", "User",
		"--index", "name:STRING",
		"--index", "age:integer,city:STRING")
	if !strings.Contains(out, "1 view(s) created") {
		t.Fatalf("Unexpected create output: %q", out)
	}
}

func TestCreateAndList(t *testing.T) {
	baseDir := t.TempDir()
	createActiveUsers(t, baseDir)

	out := mustExecute(t, baseDir, "list")
	if !strings.Contains(out, "ActiveUsers") || !strings.Contains(out, "live") {
		t.Errorf("Expected view in listing, got %q", out)
	}

	out = mustExecute(t, baseDir, "show", "ActiveUsers")
	if !strings.Contains(out, "watchClasses:") || !strings.Contains(out, "[User]") {
		t.Errorf("Unexpected show output: %q", out)
	}
}

func TestIndexLifecycleCommands(t *testing.T) {
	baseDir := t.TempDir()
	createActiveUsers(t, baseDir)

	out := mustExecute(t, baseDir, "activate", "ActiveUsers", "idx1", "idx2")
	if !strings.Contains(out, "2 index(es) activated") {
		t.Errorf("Unexpected activate output: %q", out)
	}

	mustExecute(t, baseDir, "inactivate", "ActiveUsers", "idx1")

	out = mustExecute(t, baseDir, "indexes", "ActiveUsers")
	if !strings.Contains(out, "idx2") || !strings.Contains(out, "inactive") {
		t.Errorf("Unexpected indexes output: %q", out)
	}

	out = mustExecute(t, baseDir, "rebuild", "ActiveUsers")
	if !strings.Contains(out, "2 index(es) created") {
		t.Errorf("Unexpected rebuild output: %q", out)
	}

	mustExecute(t, baseDir, "inactivate", "--all", "ActiveUsers")

	out = mustExecute(t, baseDir, "--format", "json", "show", "ActiveUsers")
	if !strings.Contains(out, `"activeIndexNames"`) {
		t.Errorf("Expected typed JSON document, got %q", out)
	}
}

func TestRefreshAndCount(t *testing.T) {
	baseDir := t.TempDir()
	createActiveUsers(t, baseDir)

	out, err := execute(t, baseDir, `[{"name":"a"},{"name":"b"},{"name":"c"}]`, "refresh", "ActiveUsers")
	if err != nil {
		t.Fatalf("refresh failed: %v", err)
	}
	if !strings.Contains(out, "3 record(s) written") {
		t.Errorf("Unexpected refresh output: %q", out)
	}

	out = mustExecute(t, baseDir, "count", "ActiveUsers")
	if strings.TrimSpace(out) != "3" {
		t.Errorf("Expected 3 rows, got %q", out)
	}
}

func TestDrop(t *testing.T) {
	baseDir := t.TempDir()
	createActiveUsers(t, baseDir)

	mustExecute(t, baseDir, "drop", "ActiveUsers")

	if _, err := execute(t, baseDir, "", "show", "ActiveUsers"); err == nil {
		t.Error("Expected show of a dropped view to fail")
	}
}

func TestExportImport(t *testing.T) {
	source := t.TempDir()
	createActiveUsers(t, source)
	mustExecute(t, source, "activate", "ActiveUsers", "idx1")

	snapshotFile := filepath.Join(t.TempDir(), "views.snap")
	out := mustExecute(t, source, "export", snapshotFile)
	if !strings.Contains(out, "Exported") {
		t.Errorf("Unexpected export output: %q", out)
	}

	target := t.TempDir()
	mustExecute(t, target, "import", snapshotFile)

	out = mustExecute(t, target, "indexes", "ActiveUsers")
	if !strings.Contains(out, "idx1") {
		t.Errorf("Expected imported index state, got %q", out)
	}
}

func TestInvalidInput(t *testing.T) {
	baseDir := t.TempDir()

	cases := [][]string{
		{"--format", "xml", "list"},
		{"create", "V", "--query", "SELECT FROM V", "--strategy", "sometimes"},
		{"create", "V", "--query", "SELECT FROM V", "--index", "name"},
		{"inactivate", "V"},
		{"count", "Missing"},
	}
	for _, args := range cases {
		if _, err := execute(t, baseDir, "", args...); err == nil {
			t.Errorf("Expected viewdb %s to fail", strings.Join(args, " "))
		}
	}
}

func TestParseIndexProperties(t *testing.T) {
	props, err := parseIndexProperties("name:STRING, age:integer")
	if err != nil {
		t.Fatalf("parseIndexProperties failed: %v", err)
	}

	want := []core.IndexProperty{
		{Name: "name", Type: core.StringType},
		{Name: "age", Type: core.IntType},
	}
	if len(props) != len(want) {
		t.Fatalf("Expected %d properties, got %v", len(want), props)
	}
	for i := range want {
		if props[i] != want[i] {
			t.Errorf("Property %d: expected %v, got %v", i, want[i], props[i])
		}
	}

	if _, err := parseIndexProperties("name:NOPE"); err == nil {
		t.Error("Expected unknown type to fail")
	}
}
