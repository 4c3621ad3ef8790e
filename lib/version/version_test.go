// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package version

import (
	"strings"
	"testing"
)

func TestInfoUsesInjectedValues(t *testing.T) {
	saved := [...]string{GitCommit, GitDirty, BuildTime, Version}
	t.Cleanup(func() {
		GitCommit, GitDirty, BuildTime, Version = saved[0], saved[1], saved[2], saved[3]
	})

	GitCommit, GitDirty, BuildTime, Version = "abc1234", "true", "2026-03-01T00:00:00Z", "1.2.0"

	if got, want := Info(), "1.2.0 (abc1234-dirty, 2026-03-01T00:00:00Z)"; got != want {
		t.Errorf("Info() = %q, want %q", got, want)
	}
	if full := Full(); !strings.HasPrefix(full, Info()) || !strings.Contains(full, "Go: go") {
		t.Errorf("Full() = %q", full)
	}

	attrs := LogAttrs()
	if len(attrs)%2 != 0 {
		t.Fatalf("LogAttrs has odd length %d", len(attrs))
	}
	values := make(map[string]any)
	for i := 0; i < len(attrs); i += 2 {
		values[attrs[i].(string)] = attrs[i+1]
	}
	if values["commit"] != "abc1234" || values["dirty"] != true || values["version"] != "1.2.0" {
		t.Errorf("LogAttrs = %v", values)
	}
}

func TestInfoWithoutInjection(t *testing.T) {
	saved := GitCommit
	t.Cleanup(func() { GitCommit = saved })
	GitCommit = "unknown"

	// Test binaries carry no VCS settings, so the commit stays unknown
	// or resolves to a real revision; either way Info is well formed.
	info := Info()
	if !strings.HasPrefix(info, Version+" (") || !strings.HasSuffix(info, ")") {
		t.Errorf("Info() = %q", info)
	}
}
