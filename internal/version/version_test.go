package version

import (
	"strings"
	"testing"
)

func TestString(t *testing.T) {
	orig := Version
	t.Cleanup(func() { Version = orig })
	Version = "1.2.3"

	got := String()
	if !strings.HasPrefix(got, "groundseg 1.2.3 (") {
		t.Errorf("String() = %q", got)
	}
	if !strings.Contains(got, GitSHA) {
		t.Errorf("String() = %q, missing git sha", got)
	}
}
