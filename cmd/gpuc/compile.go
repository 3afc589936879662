package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/tliron/commonlog"

	"gpuc/grammar"
	"gpuc/internal/driver"
	diag "gpuc/internal/errors"
	"gpuc/internal/nir"
	"gpuc/internal/target"
	"gpuc/internal/variant"
)

var compileCmd = &cobra.Command{
	Use:   "compile [flags] <file.nir>",
	Short: "Compile a source program to ir3",
	Long:  `Compile a source program once per variant and print the machine program, its msgpack snapshot or the cleaned up source`,
	Args:  cobra.ExactArgs(1),
	RunE:  runCompile,
}

func init() {
	compileCmd.Flags().Int("gen", 6, "target GPU generation (3-7)")
	compileCmd.Flags().String("stage", "", "override the stage declared by the program")
	compileCmd.Flags().String("variant", "", "TOML file listing the variants to compile")
	compileCmd.Flags().String("emit", "text", "output format (text|msgpack|nir)")
	compileCmd.Flags().StringP("output", "o", "", "write output to file instead of stdout")
	compileCmd.Flags().Int("jobs", 0, "max variants compiled in parallel (0=auto)")
	compileCmd.Flags().Bool("debug", false, "log the final source program and the machine program")
	compileCmd.Flags().Bool("no-prefetch", false, "disable texture prefetch for fragment shaders")
}

type compileOptions struct {
	gen        int
	emit       string
	output     string
	debug      bool
	noPrefetch bool
	variants   string
	driver     driver.Options
}

func readCompileOptions(cmd *cobra.Command) (compileOptions, error) {
	var opts compileOptions
	var err error
	flags := cmd.Flags()

	if opts.gen, err = flags.GetInt("gen"); err != nil {
		return opts, fmt.Errorf("failed to get gen flag: %w", err)
	}
	if opts.driver.Stage, err = flags.GetString("stage"); err != nil {
		return opts, fmt.Errorf("failed to get stage flag: %w", err)
	}
	if opts.variants, err = flags.GetString("variant"); err != nil {
		return opts, fmt.Errorf("failed to get variant flag: %w", err)
	}
	if opts.emit, err = flags.GetString("emit"); err != nil {
		return opts, fmt.Errorf("failed to get emit flag: %w", err)
	}
	if opts.output, err = flags.GetString("output"); err != nil {
		return opts, fmt.Errorf("failed to get output flag: %w", err)
	}
	if opts.driver.Jobs, err = flags.GetInt("jobs"); err != nil {
		return opts, fmt.Errorf("failed to get jobs flag: %w", err)
	}
	if opts.debug, err = flags.GetBool("debug"); err != nil {
		return opts, fmt.Errorf("failed to get debug flag: %w", err)
	}
	if opts.noPrefetch, err = flags.GetBool("no-prefetch"); err != nil {
		return opts, fmt.Errorf("failed to get no-prefetch flag: %w", err)
	}

	opts.emit = strings.ToLower(opts.emit)
	switch opts.emit {
	case "text", "nir":
	case "msgpack":
		opts.driver.Snapshot = true
	default:
		return opts, fmt.Errorf("unknown --emit value %q (expected text|msgpack|nir)", opts.emit)
	}
	return opts, nil
}

// runCompile parses the program, compiles every variant and writes the
// requested output. It fails when the program does not parse or any
// variant fails to compile.
func runCompile(cmd *cobra.Command, args []string) error {
	startTime := time.Now()
	path := args[0]

	opts, err := readCompileOptions(cmd)
	if err != nil {
		return err
	}

	prog, src, err := driver.ParseFile(path, opts.driver)
	if err != nil {
		printSourceErrors(cmd.ErrOrStderr(), path, src, err)
		return fmt.Errorf("%s: parse failed", path)
	}

	variants := []*variant.Variant{variant.Default()}
	if opts.variants != "" {
		cfg, err := variant.LoadFile(opts.variants)
		if err != nil {
			return err
		}
		if len(cfg.Variants) > 0 {
			variants = cfg.Variants
		}
		if cfg.Gen != 0 && !cmd.Flags().Changed("gen") {
			opts.gen = cfg.Gen
		}
	}

	var targetOpts []target.Option
	if opts.debug {
		verbose, _ := cmd.Flags().GetCount("verbose")
		commonlog.Configure(max(verbose, 1), nil)
		targetOpts = append(targetOpts, target.WithDebug(prog.Stage), target.WithDebugInternal())
	}
	if opts.noPrefetch {
		targetOpts = append(targetOpts, target.WithTexPrefetch(false))
	}
	c, err := target.New(opts.gen, targetOpts...)
	if err != nil {
		return err
	}

	out, closeOut, err := openOutput(cmd, opts.output)
	if err != nil {
		return err
	}
	defer closeOut()

	if opts.emit == "nir" {
		_, err := io.WriteString(out, nir.Print(prog))
		return err
	}

	results, err := driver.CompileVariants(cmd.Context(), c, variant.NewShader(prog), variants, opts.driver)
	if err != nil {
		return err
	}

	reporter := diag.NewErrorReporter(path, src)
	failed := 0
	for _, res := range results {
		if res.Failed() {
			failed++
			printFailure(cmd.ErrOrStderr(), reporter, res)
			continue
		}
		if err := writeResult(out, opts.emit, res, len(results) > 1); err != nil {
			return err
		}
	}

	duration := time.Since(startTime)
	if failed > 0 {
		color.New(color.FgRed).Fprintf(cmd.ErrOrStderr(), "%d of %d variants failed after %s\n", failed, len(results), formatDuration(duration))
		return fmt.Errorf("%s: %w", path, driver.Errors(results))
	}
	if opts.output != "" {
		color.New(color.FgGreen).Fprintf(cmd.ErrOrStderr(), "Compiled %d variants of %s in %s\n", len(results), path, formatDuration(duration))
	}
	return nil
}

func openOutput(cmd *cobra.Command, path string) (io.Writer, func(), error) {
	if path == "" {
		return cmd.OutOrStdout(), func() {}, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create output: %w", err)
	}
	return f, func() { _ = f.Close() }, nil
}

// writeResult writes one compiled variant. msgpack snapshots of several
// variants are written back to back and can be read with one decoder.
func writeResult(out io.Writer, emit string, res driver.Result, header bool) error {
	if emit == "msgpack" {
		_, err := out.Write(res.Snapshot)
		return err
	}
	if header {
		if _, err := fmt.Fprintf(out, "; variant %s\n", res.Variant); err != nil {
			return err
		}
	}
	_, err := io.WriteString(out, res.Listing)
	return err
}

func printFailure(w io.Writer, reporter *diag.ErrorReporter, res driver.Result) {
	if res.Diagnostic == nil {
		color.New(color.FgRed, color.Bold).Fprintf(w, "variant %s: ", res.Variant)
		fmt.Fprintln(w, res.Err)
		return
	}
	fmt.Fprint(w, reporter.FormatError(*res.Diagnostic))
	if res.Dump != "" {
		fmt.Fprint(w, diag.FormatAnnotatedDump(fmt.Sprintf("variant %s:", res.Variant), res.Dump))
	}
}

func printSourceErrors(w io.Writer, path, src string, err error) {
	if src == "" {
		fmt.Fprintln(w, color.RedString("error: %s", err))
		return
	}
	if _, _, _, ok := grammar.ErrorPosition(err); ok {
		fmt.Fprint(w, grammar.FormatParseError(src, err))
		return
	}
	reporter := diag.NewErrorReporter(path, src)
	for _, e := range driver.SourceErrors(err) {
		fmt.Fprint(w, reporter.FormatError(e))
	}
}

func formatDuration(d time.Duration) string {
	switch {
	case d >= time.Minute:
		return fmt.Sprintf("%.2fmin", d.Minutes())
	case d >= time.Second:
		return fmt.Sprintf("%.2fs", d.Seconds())
	case d >= time.Millisecond:
		return fmt.Sprintf("%.1fms", float64(d.Nanoseconds())/1000000.0)
	case d >= time.Microsecond:
		return fmt.Sprintf("%.1fμs", float64(d.Nanoseconds())/1000.0)
	default:
		return fmt.Sprintf("%dns", d.Nanoseconds())
	}
}
