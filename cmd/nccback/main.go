package main

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/nccback/nccback/pkg/asm"
	"github.com/nccback/nccback/pkg/asmgen"
	"github.com/nccback/nccback/pkg/cabs"
	"github.com/nccback/nccback/pkg/encoder"
	"github.com/nccback/nccback/pkg/ir"
	"github.com/nccback/nccback/pkg/irgen"
	"github.com/nccback/nccback/pkg/lexer"
	"github.com/nccback/nccback/pkg/parser"
	"github.com/nccback/nccback/pkg/preproc"
	"github.com/nccback/nccback/pkg/regalloc"
	"github.com/nccback/nccback/pkg/stacking"
	"github.com/spf13/cobra"
)

var version = "0.1.0"

// Debug flags for dumping intermediate representations.
var (
	dCabs          bool
	dIR            bool
	dAsm           bool
	dAlloc         bool
	dBin           bool
	preprocessOnly bool // -E
)

// Preprocessor options.
var (
	includePaths []string
	defineFlags  []string
)

func main() {
	os.Exit(run())
}

func run() int {
	rootCmd := newRootCmd(os.Stdout, os.Stderr)
	rootCmd.SetArgs(normalizeFlags(os.Args[1:]))
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "nccback: %v\n", err)
		return 1
	}
	return 0
}

// debugFlagNames lists the flags that should also accept CompCert-style
// single-dash spelling (-dasm as well as --dasm).
var debugFlagNames = []string{"dcabs", "dir", "dasm", "dalloc", "dbin"}

func normalizeFlags(args []string) []string {
	result := make([]string, len(args))
	for i, arg := range args {
		result[i] = arg
		for _, name := range debugFlagNames {
			if arg == "-"+name {
				result[i] = "--" + name
				break
			}
		}
	}
	return result
}

func newRootCmd(out, errOut io.Writer) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "nccback [file]",
		Short: "nccback is a standalone C compiler backend",
		Long: `nccback lowers a single preprocessed C translation unit down to
x86-64 machine code: IR construction and local folding, instruction
selection, linear-scan register allocation, SysV frame layout, and
direct machine-code encoding into a flat binary image.`,
		Version:       version,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("%v", r)
				}
			}()

			if len(args) == 0 {
				cmd.Help()
				return nil
			}
			filename := args[0]

			switch {
			case preprocessOnly:
				return doPreprocessOnly(filename, out, errOut)
			case dCabs:
				return doCabs(filename, out, errOut)
			case dIR:
				return doIR(filename, out, errOut)
			case dAsm:
				return doAsm(filename, out, errOut)
			case dAlloc:
				return doAlloc(filename, out, errOut)
			case dBin:
				return doBin(filename, out, errOut)
			}

			fmt.Fprintf(errOut, "nccback: compiling %s\n", filename)
			return nil
		},
	}
	rootCmd.SetOut(out)
	rootCmd.SetErr(errOut)

	rootCmd.Flags().BoolVar(&dCabs, "dcabs", false, "Dump parsed AST")
	rootCmd.Flags().BoolVar(&dIR, "dir", false, "Dump IR")
	rootCmd.Flags().BoolVar(&dAsm, "dasm", false, "Dump abstract assembly before register allocation")
	rootCmd.Flags().BoolVar(&dAlloc, "dalloc", false, "Dump assembly after register allocation and frame layout")
	rootCmd.Flags().BoolVar(&dBin, "dbin", false, "Dump the encoded binary image (hex + symbol table)")
	rootCmd.Flags().BoolVarP(&preprocessOnly, "preprocess", "E", false, "Preprocess only, output to stdout")
	rootCmd.Flags().StringArrayVarP(&includePaths, "include", "I", nil, "Add directory to include search path")
	rootCmd.Flags().StringArrayVarP(&defineFlags, "define", "D", nil, "Define macro (NAME or NAME=VALUE)")

	return rootCmd
}

func buildPreprocessorOptions() *preproc.Options {
	opts := &preproc.Options{
		IncludePaths: includePaths,
		Defines:      make(map[string]string),
	}
	for _, d := range defineFlags {
		if idx := strings.Index(d, "="); idx >= 0 {
			opts.Defines[d[:idx]] = d[idx+1:]
		} else {
			opts.Defines[d] = ""
		}
	}
	return opts
}

func readAndPreprocess(filename string) (string, error) {
	if preproc.NeedsPreprocessing(filename) {
		return preproc.Preprocess(filename, buildPreprocessorOptions())
	}
	content, err := os.ReadFile(filename)
	if err != nil {
		return "", fmt.Errorf("error reading %s: %w", filename, err)
	}
	return string(content), nil
}

func doPreprocessOnly(filename string, out, errOut io.Writer) error {
	opts := buildPreprocessorOptions()
	opts.LineMarkers = true
	content, err := preproc.Preprocess(filename, opts)
	if err != nil {
		return fmt.Errorf("preprocessing error: %w", err)
	}
	fmt.Fprint(out, content)
	return nil
}

// parseFile preprocesses and parses filename into a cabs translation unit.
// Parse errors are fatal (the parser panics on the first one), so they're
// turned into a plain error here rather than propagating to the caller.
func parseFile(filename string) (tu *cabs.TranslationUnit, err error) {
	content, err := readAndPreprocess(filename)
	if err != nil {
		return nil, err
	}
	defer func() {
		if r := recover(); r != nil {
			tu, err = nil, fmt.Errorf("%s: %v", filename, r)
		}
	}()
	l := lexer.New(content)
	p := parser.New(l)
	return p.ParseTranslationUnit(), nil
}

func doCabs(filename string, out, errOut io.Writer) error {
	tu, err := parseFile(filename)
	if err != nil {
		return err
	}
	outputFilename := derivedOutputFilename(filename, ".cabs")
	return writeAndEcho(outputFilename, out, func(w io.Writer) {
		fmt.Fprintf(w, "%+v\n", tu)
	})
}

// lowerToIR parses filename and lowers it all the way to IR. irgen.Lower
// panics on constructs outside the supported subset, so that's recovered
// here too rather than left to unwind past the CLI boundary.
func lowerToIR(filename string) (irTU *ir.TransUnit, err error) {
	tu, err := parseFile(filename)
	if err != nil {
		return nil, err
	}
	defer func() {
		if r := recover(); r != nil {
			irTU, err = nil, fmt.Errorf("%s: %v", filename, r)
		}
	}()
	return irgen.Lower(tu), nil
}

func doIR(filename string, out, errOut io.Writer) error {
	irTU, err := lowerToIR(filename)
	if err != nil {
		return err
	}
	outputFilename := derivedOutputFilename(filename, ".ir")
	return writeAndEcho(outputFilename, out, func(w io.Writer) {
		ir.DumpTransUnit(w, irTU)
	})
}

// doAsm dumps abstract assembly before register allocation or frame layout:
// virtual registers, no prologue/epilogue.
func doAsm(filename string, out, errOut io.Writer) error {
	irTU, err := lowerToIR(filename)
	if err != nil {
		return err
	}
	prog := asmgen.TransformTransUnit(irTU)
	outputFilename := derivedOutputFilename(filename, ".pre.s")
	return writeAndEcho(outputFilename, out, func(w io.Writer) {
		asm.NewPrinter(w).PrintProgram(prog)
	})
}

// doAlloc runs register allocation and frame synthesis, then dumps the
// resulting physical-register assembly with its prologue/epilogue.
func doAlloc(filename string, out, errOut io.Writer) error {
	prog, err := compileToAsm(filename)
	if err != nil {
		return err
	}
	outputFilename := derivedOutputFilename(filename, ".s")
	return writeAndEcho(outputFilename, out, func(w io.Writer) {
		asm.NewPrinter(w).PrintProgram(prog)
	})
}

// doBin runs the full pipeline through the encoder and dumps a hex listing
// of .text/.data plus the resolved symbol table; the raw bytes themselves
// are written beside the input, its ".c" suffix replaced by ".bin".
func doBin(filename string, out, errOut io.Writer) error {
	prog, err := compileToAsm(filename)
	if err != nil {
		return err
	}
	img, err := encoder.Encode(prog)
	if err != nil {
		return fmt.Errorf("encoding error: %w", err)
	}

	binFilename := derivedOutputFilename(filename, ".bin")
	if err := os.WriteFile(binFilename, append(append([]byte{}, img.Text...), img.Data...), 0644); err != nil {
		return fmt.Errorf("error writing %s: %w", binFilename, err)
	}

	dump := dumpImage(img)
	fmt.Fprint(out, dump)
	return nil
}

// compileToAsm runs the whole pipeline up through allocation and stacking,
// leaving a Program ready for the encoder.
func compileToAsm(filename string) (*asm.Program, error) {
	irTU, err := lowerToIR(filename)
	if err != nil {
		return nil, err
	}
	prog := asmgen.TransformTransUnit(irTU)
	for _, fn := range prog.Functions {
		regalloc.Allocate(fn)
		stacking.SynthesizeFrame(fn)
	}
	return prog, nil
}

func dumpImage(img *encoder.Image) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "text: %d bytes\n", len(img.Text))
	for i := 0; i < len(img.Text); i += 16 {
		end := i + 16
		if end > len(img.Text) {
			end = len(img.Text)
		}
		fmt.Fprintf(&sb, "  %06x: % x\n", i, img.Text[i:end])
	}
	fmt.Fprintf(&sb, "data: %d bytes\n", len(img.Data))
	fmt.Fprintf(&sb, "bss: %d bytes\n", img.BSSSize)
	fmt.Fprintf(&sb, "symbols:\n")
	names := make([]string, 0, len(img.Symbols))
	for name := range img.Symbols {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return img.Symbols[names[i]].Index < img.Symbols[names[j]].Index })
	for _, name := range names {
		sym := img.Symbols[name]
		fmt.Fprintf(&sb, "  %-3d %-20s section=%-5s addr=%-8d global=%v\n", sym.Index, name, sym.Section, sym.Addr, sym.Global)
	}
	return sb.String()
}

func derivedOutputFilename(filename, suffix string) string {
	if strings.HasSuffix(filename, ".c") {
		return filename[:len(filename)-len(".c")] + suffix
	}
	return filename + suffix
}

func writeAndEcho(outputFilename string, out io.Writer, write func(io.Writer)) error {
	f, err := os.Create(outputFilename)
	if err != nil {
		return fmt.Errorf("error creating %s: %w", outputFilename, err)
	}
	defer f.Close()
	write(f)
	write(out)
	return nil
}
