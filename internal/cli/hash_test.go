package cli_test

import (
	"regexp"
	"strings"
	"testing"

	"github.com/calvinalkan/chromecache/internal/cli"
)

func Test_Hash_Prints_One_Line_Per_Key(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	stdout := c.MustRun("hash", "https://example.com/a", "https://example.com/b")

	lines := strings.Split(stdout, "\n")
	if got, want := len(lines), 2; got != want {
		t.Fatalf("line count=%d, want=%d\nstdout:\n%s", got, want, stdout)
	}

	lineRe := regexp.MustCompile(`^[0-9a-f]{8}  https://example\.com/[ab]$`)
	for i, line := range lines {
		if !lineRe.MatchString(line) {
			t.Errorf("line[%d]=%q does not match %s", i, line, lineRe)
		}
	}

	if lines[0][:8] == lines[1][:8] {
		t.Errorf("different keys hashed to the same value: %q", lines[0][:8])
	}
}

func Test_Hash_Is_Stable_Across_Runs(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)

	first := c.MustRun("hash", "https://example.com/stable")
	again := c.MustRun("hash", "https://example.com/stable")

	if first != again {
		t.Errorf("hash changed between runs: %q then %q", first, again)
	}
}

func Test_Hash_Of_Empty_Key_Is_Zero(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	stdout, stderr, exitCode := c.Run("hash", "")

	if got, want := exitCode, 0; got != want {
		t.Errorf("exitCode=%d, want=%d", got, want)
	}

	if got, want := stderr, ""; got != want {
		t.Errorf("stderr=%q, want=%q", got, want)
	}

	if got, want := stdout, "00000000  \n"; got != want {
		t.Errorf("stdout=%q, want=%q", got, want)
	}
}

func Test_Hash_Without_Key_Argument(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	stderr := c.MustFail("hash")

	cli.AssertContains(t, stderr, "missing key argument")
}
