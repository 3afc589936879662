package driver

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"

	"github.com/tliron/commonlog"
	"golang.org/x/sync/errgroup"

	"gpuc/internal/compiler"
	diag "gpuc/internal/errors"
	"gpuc/internal/ir3"
	"gpuc/internal/nir"
	"gpuc/internal/target"
	"gpuc/internal/variant"
)

var log = commonlog.GetLogger("gpuc.driver")

// Options controls a driver run
type Options struct {
	// Jobs is the number of variants compiled at once, GOMAXPROCS when <= 0
	Jobs int
	// Stage overrides the stage declared by the program when non-empty
	Stage string
	// Snapshot requests the msgpack encoding of each machine program
	Snapshot bool
}

// Result is the outcome of compiling one variant
type Result struct {
	Variant string
	// Listing is the printed machine program, empty on failure
	Listing  string
	Snapshot []byte
	// NumSamplerPrefetch is the number of texture prefetches emitted
	NumSamplerPrefetch int

	// Err is set when the variant failed to compile
	Err error
	// Diagnostic and Dump describe a fatal translation error
	Diagnostic *diag.CompilerError
	Dump       string
}

// Failed reports whether the variant did not compile
func (r *Result) Failed() bool { return r.Err != nil }

// ParseFile reads and parses a program, applying the stage override
func ParseFile(path string, opts Options) (*nir.Shader, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read file: %w", err)
	}
	src := string(data)
	prog, err := ParseSource(path, src, opts)
	return prog, src, err
}

// ParseSource parses a program held in memory, applying the stage override
func ParseSource(filename, src string, opts Options) (*nir.Shader, error) {
	prog, err := nir.Parse(filename, src)
	if err != nil {
		return nil, err
	}
	if opts.Stage != "" {
		stage, err := nir.ParseStage(opts.Stage)
		if err != nil {
			return nil, err
		}
		prog.Stage = stage
	}
	return prog, nil
}

// CompileFile parses path and compiles every variant of it
func CompileFile(ctx context.Context, c *target.Compiler, path string, variants []*variant.Variant, opts Options) ([]Result, error) {
	prog, _, err := ParseFile(path, opts)
	if err != nil {
		return nil, err
	}
	return CompileVariants(ctx, c, variant.NewShader(prog), variants, opts)
}

// CompileVariants compiles sh once per variant in parallel. A variant that
// fails to compile is reported in its Result; the returned error is only
// set when the run itself was cancelled. Results are in variant order.
func CompileVariants(ctx context.Context, c *target.Compiler, sh *variant.Shader, variants []*variant.Variant, opts Options) ([]Result, error) {
	if len(variants) == 0 {
		variants = []*variant.Variant{variant.Default()}
	}

	jobs := opts.Jobs
	if jobs <= 0 {
		jobs = runtime.GOMAXPROCS(0)
	}

	results := make([]Result, len(variants))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(min(jobs, len(variants)))

	for i, v := range variants {
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			default:
			}

			// results[i] is only written by this goroutine
			results[i] = compileOne(c, sh, v.Clone(), opts)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, nil
}

func compileOne(c *target.Compiler, sh *variant.Shader, v *variant.Variant, opts Options) Result {
	res := Result{Variant: v.Name}

	cctx, err := compiler.Init(c, sh, v)
	if err != nil {
		res.Err = err
		log.Errorf("variant %s: %s", v.Name, err)
		return res
	}
	defer cctx.Free()

	ir, err := compiler.Translate(cctx)
	if err != nil {
		res.Err = err
		if fe, ok := compiler.AsFatal(err); ok {
			d := fe.Diagnostic()
			res.Diagnostic = &d
			res.Dump = fe.Dump
		}
		log.Warningf("variant %s of %s: %s", v.Name, sh.Name, err)
		return res
	}

	res.Listing = ir3.Print(ir)
	res.NumSamplerPrefetch = v.NumSamplerPrefetch

	if opts.Snapshot {
		var buf bytes.Buffer
		if err := ir3.EncodeSnapshot(&buf, ir); err != nil {
			res.Err = err
			return res
		}
		res.Snapshot = buf.Bytes()
	}

	log.Infof("variant %s of %s: %d blocks", v.Name, sh.Name, len(ir.Blocks))
	return res
}

// Errors joins the errors of every failed result, nil if all compiled
func Errors(results []Result) error {
	var errs []error
	for i := range results {
		if results[i].Err != nil {
			errs = append(errs, fmt.Errorf("variant %s: %w", results[i].Variant, results[i].Err))
		}
	}
	return errors.Join(errs...)
}
