// Package preproc handles C preprocessing.
// It provides a minimal internal pass (line splicing, #include, #define/
// #undef, #ifdef/#ifndef/#else/#endif) and a fallback to an external system
// preprocessor (cc -E). The internal pass deliberately does not implement
// object-like macro recursion, function-like macros, or #if/#elif expression
// evaluation: the preprocessor is an out-of-scope external collaborator here,
// and nothing in the supported C subset needs more than textual inclusion and
// flag-style conditional compilation. Comment stripping is not done here
// either — pkg/lexer already skips comments while tokenizing.
package preproc

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// Options configures the preprocessing step
type Options struct {
	IncludePaths []string          // -I directories
	SystemPaths  []string          // -isystem directories
	Defines      map[string]string // -D macros (name -> value, empty string for simple define)
	Undefines    []string          // -U macros
	UseExternal  bool              // Force use of external preprocessor
	LineMarkers  bool              // Generate #line markers
}

// Preprocess runs the C preprocessor on the given source file and returns
// the preprocessed source code as a string.
// By default, it uses the internal preprocessor. Set UseExternal option
// to force use of the system preprocessor.
func Preprocess(filename string, opts *Options) (string, error) {
	if opts != nil && opts.UseExternal {
		return preprocessExternal(filename, opts)
	}
	content, err := os.ReadFile(filename)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", filename, err)
	}
	p := newPass(opts)
	return p.run(string(content), filename, 0)
}

// pass holds the state threaded through one internal preprocessing run,
// shared by nested #include runs: the active macro set, the include search
// paths, and whether to emit line markers. The #ifdef nesting stack is local
// to each run call.
type pass struct {
	macros       map[string]string
	includePaths []string
	systemPaths  []string
	lineMarkers  bool
}

func newPass(opts *Options) *pass {
	p := &pass{macros: make(map[string]string)}
	if opts == nil {
		return p
	}
	p.includePaths = opts.IncludePaths
	p.systemPaths = opts.SystemPaths
	p.lineMarkers = opts.LineMarkers
	for name, val := range opts.Defines {
		p.macros[name] = val
	}
	for _, name := range opts.Undefines {
		delete(p.macros, name)
	}
	return p
}

// condFrame tracks one level of #ifdef/#ifndef nesting: whether this
// branch's own condition held, and whether the enclosing branch is live.
type condFrame struct {
	active   bool
	everTrue bool
	parentOK bool
}

const maxIncludeDepth = 32

// run splices continuation lines, strips directives, substitutes
// object-like macros, and inlines #include targets.
func (p *pass) run(content, filename string, depth int) (string, error) {
	if depth > maxIncludeDepth {
		return "", fmt.Errorf("%s: #include nesting too deep", filename)
	}
	lines := spliceContinuations(content)

	var out strings.Builder
	var stack []condFrame
	live := func() bool {
		return len(stack) == 0 || (stack[len(stack)-1].active && stack[len(stack)-1].parentOK)
	}

	if p.lineMarkers {
		fmt.Fprintf(&out, "# 1 %q\n", filename)
	}

	for lineNo, line := range lines {
		trimmed := strings.TrimSpace(line)
		if !strings.HasPrefix(trimmed, "#") {
			if live() {
				out.WriteString(p.expandMacros(line))
				out.WriteByte('\n')
			}
			continue
		}

		directive, rest := splitDirective(trimmed)
		switch directive {
		case "ifdef", "ifndef":
			name := strings.TrimSpace(rest)
			_, defined := p.macros[name]
			if directive == "ifndef" {
				defined = !defined
			}
			stack = append(stack, condFrame{active: defined, everTrue: defined, parentOK: live()})
		case "else":
			if len(stack) == 0 {
				return "", fmt.Errorf("%s:%d: #else without #ifdef", filename, lineNo+1)
			}
			top := &stack[len(stack)-1]
			top.active = !top.everTrue
			top.everTrue = true
		case "endif":
			if len(stack) == 0 {
				return "", fmt.Errorf("%s:%d: #endif without #ifdef", filename, lineNo+1)
			}
			stack = stack[:len(stack)-1]
		case "define":
			if !live() {
				continue
			}
			name, val := splitDefine(rest)
			p.macros[name] = val
		case "undef":
			if !live() {
				continue
			}
			delete(p.macros, strings.TrimSpace(rest))
		case "include":
			if !live() {
				continue
			}
			path, system := parseIncludeTarget(rest)
			incPath, err := p.resolveInclude(path, system, filename)
			if err != nil {
				return "", fmt.Errorf("%s:%d: %w", filename, lineNo+1, err)
			}
			incContent, err := os.ReadFile(incPath)
			if err != nil {
				return "", fmt.Errorf("%s:%d: %w", filename, lineNo+1, err)
			}
			expanded, err := p.run(string(incContent), incPath, depth+1)
			if err != nil {
				return "", err
			}
			out.WriteString(expanded)
		default:
			// Unsupported directive (#if, #elif, #pragma, #error, ...): out of
			// scope, left untouched for a downstream stage to reject if it matters.
			if live() {
				out.WriteString(line)
				out.WriteByte('\n')
			}
		}
	}

	if len(stack) != 0 {
		return "", fmt.Errorf("%s: unterminated #ifdef", filename)
	}
	return out.String(), nil
}

// spliceContinuations joins lines ending in a backslash with the line that
// follows, the same way a real C preprocessor treats physical vs. logical
// source lines.
func spliceContinuations(content string) []string {
	raw := strings.Split(content, "\n")
	var lines []string
	var cur strings.Builder
	for _, l := range raw {
		if strings.HasSuffix(l, "\\") {
			cur.WriteString(l[:len(l)-1])
			continue
		}
		cur.WriteString(l)
		lines = append(lines, cur.String())
		cur.Reset()
	}
	if cur.Len() > 0 {
		lines = append(lines, cur.String())
	}
	return lines
}

func splitDirective(trimmed string) (name, rest string) {
	body := strings.TrimSpace(strings.TrimPrefix(trimmed, "#"))
	if sp := strings.IndexAny(body, " \t"); sp >= 0 {
		return body[:sp], body[sp+1:]
	}
	return body, ""
}

// splitDefine parses `NAME value` from a #define's remainder. Function-like
// macro parameter lists are not supported; NAME is taken up to the first
// whitespace or '(' and anything after is treated as the literal value.
func splitDefine(rest string) (name, val string) {
	rest = strings.TrimSpace(rest)
	end := len(rest)
	for i, r := range rest {
		if r == ' ' || r == '\t' || r == '(' {
			end = i
			break
		}
	}
	name = rest[:end]
	val = strings.TrimSpace(rest[end:])
	return name, val
}

func parseIncludeTarget(rest string) (path string, system bool) {
	rest = strings.TrimSpace(rest)
	if len(rest) >= 2 && rest[0] == '"' {
		if end := strings.IndexByte(rest[1:], '"'); end >= 0 {
			return rest[1 : end+1], false
		}
	}
	if len(rest) >= 2 && rest[0] == '<' {
		if end := strings.IndexByte(rest, '>'); end >= 0 {
			return rest[1:end], true
		}
	}
	return rest, false
}

func (p *pass) resolveInclude(path string, system bool, fromFile string) (string, error) {
	if !system {
		local := filepath.Join(filepath.Dir(fromFile), path)
		if _, err := os.Stat(local); err == nil {
			return local, nil
		}
		for _, dir := range p.includePaths {
			candidate := filepath.Join(dir, path)
			if _, err := os.Stat(candidate); err == nil {
				return candidate, nil
			}
		}
	}
	for _, dir := range p.systemPaths {
		candidate := filepath.Join(dir, path)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("%s: no such file in include path", path)
}

// expandMacros does a single non-recursive, whole-word substitution pass
// over object-like macros. Function-like macro invocation is not recognized.
func (p *pass) expandMacros(line string) string {
	if len(p.macros) == 0 {
		return line
	}
	var out strings.Builder
	i := 0
	for i < len(line) {
		if !isIdentStart(line[i]) {
			out.WriteByte(line[i])
			i++
			continue
		}
		j := i + 1
		for j < len(line) && isIdentCont(line[j]) {
			j++
		}
		word := line[i:j]
		if val, ok := p.macros[word]; ok {
			out.WriteString(val)
		} else {
			out.WriteString(word)
		}
		i = j
	}
	return out.String()
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentCont(c byte) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9')
}

// preprocessExternal uses the system C preprocessor (cc -E)
func preprocessExternal(filename string, opts *Options) (string, error) {
	args := []string{"-E"}

	if opts != nil {
		for _, path := range opts.IncludePaths {
			args = append(args, "-I"+path)
		}
		for _, path := range opts.SystemPaths {
			args = append(args, "-isystem", path)
		}
		for name, value := range opts.Defines {
			if value == "" {
				args = append(args, "-D"+name)
			} else {
				args = append(args, "-D"+name+"="+value)
			}
		}
		for _, name := range opts.Undefines {
			args = append(args, "-U"+name)
		}
	}

	args = append(args, filename)

	cppCmd := findPreprocessor()
	if cppCmd == "" {
		return "", fmt.Errorf("no C preprocessor found (tried: cc, gcc, clang)")
	}

	cmd := exec.Command(cppCmd, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.Dir = filepath.Dir(filename)

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("preprocessing failed: %v\n%s", err, stderr.String())
	}

	return stdout.String(), nil
}

// PreprocessString preprocesses C source code provided as a string.
// It writes the source to a temporary file, preprocesses it, then cleans up.
func PreprocessString(source, filename string, opts *Options) (string, error) {
	tmpDir := os.TempDir()
	baseName := filepath.Base(filename)
	if baseName == "" {
		baseName = "source.c"
	}
	tmpFile := filepath.Join(tmpDir, "nccback-"+baseName)

	if err := os.WriteFile(tmpFile, []byte(source), 0644); err != nil {
		return "", fmt.Errorf("failed to create temp file: %v", err)
	}
	defer os.Remove(tmpFile)

	return Preprocess(tmpFile, opts)
}

// NeedsPreprocessing returns true if the file might need preprocessing.
// Files ending in .i or .p are considered already preprocessed.
func NeedsPreprocessing(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	return ext != ".i" && ext != ".p"
}

// findPreprocessor searches for a C preprocessor on the system
func findPreprocessor() string {
	candidates := []string{"cc", "gcc", "clang"}
	for _, cmd := range candidates {
		if path, err := exec.LookPath(cmd); err == nil {
			return path
		}
	}
	return ""
}
