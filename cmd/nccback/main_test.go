package main

import (
	"bytes"
	"strings"
	"testing"
)

func TestVersion(t *testing.T) {
	if version == "" {
		t.Error("version should not be empty")
	}
}

func TestDebugFlagsExist(t *testing.T) {
	var out, errOut bytes.Buffer
	cmd := newRootCmd(&out, &errOut)

	for _, name := range []string{"dcabs", "dir", "dasm", "dalloc", "dbin", "preprocess", "include", "define"} {
		if cmd.Flags().Lookup(name) == nil {
			t.Errorf("expected flag --%s to exist", name)
		}
	}
}

func TestNormalizeFlagsConvertsSingleDash(t *testing.T) {
	got := normalizeFlags([]string{"-dasm", "foo.c", "--already-long", "-dcabs"})
	want := []string{"--dasm", "foo.c", "--already-long", "--dcabs"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("normalizeFlags(%v) = %v, want %v", []string{"-dasm", "foo.c", "--already-long", "-dcabs"}, got, want)
		}
	}
}

func TestNormalizeFlagsLeavesUnrelatedArgsAlone(t *testing.T) {
	got := normalizeFlags([]string{"-I", "include/", "file.c"})
	want := []string{"-I", "include/", "file.c"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("normalizeFlags altered an unrelated arg: got %v, want %v", got, want)
		}
	}
}

func TestDerivedOutputFilename(t *testing.T) {
	cases := []struct{ in, suffix, want string }{
		{"foo.c", ".ir", "foo.ir"},
		{"foo.c", ".s", "foo.s"},
		{"noext", ".ir", "noext.ir"},
	}
	for _, c := range cases {
		if got := derivedOutputFilename(c.in, c.suffix); got != c.want {
			t.Errorf("derivedOutputFilename(%q, %q) = %q, want %q", c.in, c.suffix, got, c.want)
		}
	}
}

func TestNoArgsPrintsHelp(t *testing.T) {
	resetFlags()
	var out, errOut bytes.Buffer
	cmd := newRootCmd(&out, &errOut)
	cmd.SetArgs(nil)
	if err := cmd.Execute(); err != nil {
		t.Fatalf("unexpected error with no args: %v", err)
	}
	if !strings.Contains(out.String(), "nccback") {
		t.Errorf("expected help output to mention nccback, got:\n%s", out.String())
	}
}

func TestUnknownFileProducesError(t *testing.T) {
	resetFlags()
	var out, errOut bytes.Buffer
	cmd := newRootCmd(&out, &errOut)
	cmd.SetArgs([]string{"--dir", "/nonexistent/path/does-not-exist.c"})
	if err := cmd.Execute(); err == nil {
		t.Fatal("expected an error for a missing input file")
	}
}

func TestBuildPreprocessorOptionsParsesDefines(t *testing.T) {
	resetFlags()
	defineFlags = []string{"FOO", "BAR=1"}
	opts := buildPreprocessorOptions()
	if v, ok := opts.Defines["FOO"]; !ok || v != "" {
		t.Errorf("expected FOO defined with empty value, got %q (ok=%v)", v, ok)
	}
	if v, ok := opts.Defines["BAR"]; !ok || v != "1" {
		t.Errorf("expected BAR=1, got %q (ok=%v)", v, ok)
	}
}
