package cli_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/specdeck/specdeck/internal/cli"
)

// run executes one invocation against dataDir and returns exit code,
// stdout and stderr.
func run(t *testing.T, dataDir string, args ...string) (int, string, string) {
	t.Helper()

	var out, errOut bytes.Buffer

	full := append([]string{"--data-dir", dataDir, "--log-level", "off"}, args...)
	code := cli.Run(&out, &errOut, full, map[string]string{}, nil)

	return code, out.String(), errOut.String()
}

// lastLine returns the last non-empty output line.
func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")

	return lines[len(lines)-1]
}

func Test_Run_Create_Then_Show(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	code, out, errOut := run(t, dir, "create", "Gateway")
	if code != 0 {
		t.Fatalf("create exit = %d, stderr: %s", code, errOut)
	}

	specID := lastLine(out)
	if specID == "" {
		t.Fatal("create printed no spec ID")
	}

	code, out, errOut = run(t, dir, "show", specID)
	if code != 0 {
		t.Fatalf("show exit = %d, stderr: %s", code, errOut)
	}

	if !strings.Contains(out, "Gateway") || !strings.Contains(out, "v1") {
		t.Fatalf("show output:\n%s", out)
	}
}

func Test_Run_Card_Add_And_Status(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	_, out, _ := run(t, dir, "create", "Gateway")
	specID := lastLine(out)

	code, out, errOut := run(t, dir, "card", "add", specID, "Design", "--field", "owner=ana")
	if code != 0 {
		t.Fatalf("card add exit = %d, stderr: %s", code, errOut)
	}

	cardID := lastLine(out)

	code, _, errOut = run(t, dir, "card", "status", specID, cardID, "done")
	if code != 0 {
		t.Fatalf("card status exit = %d, stderr: %s", code, errOut)
	}

	code, out, _ = run(t, dir, "show", specID)
	if code != 0 {
		t.Fatalf("show exit = %d", code)
	}

	if !strings.Contains(out, "[done] Design") {
		t.Fatalf("show output:\n%s", out)
	}
}

func Test_Run_Export_Markdown(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	_, out, _ := run(t, dir, "create", "Gateway")
	specID := lastLine(out)

	_, _, _ = run(t, dir, "card", "add", specID, "Design")

	code, out, errOut := run(t, dir, "export", specID, "--format", "md")
	if code != 0 {
		t.Fatalf("export exit = %d, stderr: %s", code, errOut)
	}

	if !strings.HasPrefix(out, "# Gateway\n") {
		t.Fatalf("export output:\n%s", out)
	}
}

func Test_Run_Version_Conflict_Exit_Code(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	_, out, _ := run(t, dir, "create", "Gateway")
	specID := lastLine(out)

	// Current version is 1; expect 9.
	code, _, errOut := run(t, dir, "rename", specID, "v2", "--expect", "9")
	if code != 3 {
		t.Fatalf("exit = %d, want 3, stderr: %s", code, errOut)
	}
}

func Test_Run_Unknown_Spec_Exit_Code(t *testing.T) {
	t.Parallel()

	code, _, _ := run(t, t.TempDir(), "show", "019539a8-0000-7000-8000-000000000000")
	if code != 4 {
		t.Fatalf("exit = %d, want 4", code)
	}
}

func Test_Run_Unknown_Command_Exit_Code(t *testing.T) {
	t.Parallel()

	code, _, errOut := run(t, t.TempDir(), "frobnicate")
	if code != 2 {
		t.Fatalf("exit = %d, want 2", code)
	}

	if !strings.Contains(errOut, "unknown command") {
		t.Fatalf("stderr:\n%s", errOut)
	}
}

func Test_Run_Help_Lists_Commands(t *testing.T) {
	t.Parallel()

	var out, errOut bytes.Buffer

	code := cli.Run(&out, &errOut, []string{"help"}, map[string]string{}, nil)
	if code != 0 {
		t.Fatalf("exit = %d", code)
	}

	for _, want := range []string{"create", "card add", "export", "watch", "reindex"} {
		if !strings.Contains(out.String(), want) {
			t.Fatalf("help missing %q:\n%s", want, out.String())
		}
	}
}

func Test_Run_Specs_Lists_Created(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	_, _, _ = run(t, dir, "create", "One")
	_, _, _ = run(t, dir, "create", "Two")

	code, out, errOut := run(t, dir, "specs")
	if code != 0 {
		t.Fatalf("exit = %d, stderr: %s", code, errOut)
	}

	if !strings.Contains(out, "One") || !strings.Contains(out, "Two") {
		t.Fatalf("specs output:\n%s", out)
	}
}
