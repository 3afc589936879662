package compiler

import (
	"errors"
	"fmt"

	diag "gpuc/internal/errors"
	"gpuc/internal/nir"
)

// ErrAllocation is wrapped by every error returned from Init
var ErrAllocation = errors.New("cannot create compile context")

// FatalError aborts the compile of one variant. It is raised with panic
// from inside the translation and turned into an error by Run.
type FatalError struct {
	Code    string
	Message string
	// Instr is the source instruction being translated, nil if none
	Instr *nir.Instr
	// Dump is the source program listing with the message attached to Instr
	Dump string
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Diagnostic converts the error for the reporter
func (e *FatalError) Diagnostic() diag.CompilerError {
	line := 0
	if e.Instr != nil {
		line = e.Instr.Line
	}
	return diag.Fatal(e.Code, e.Message, line)
}

// Errorf aborts the compile with an internal error. It never returns.
func (ctx *Context) Errorf(format string, args ...any) {
	ctx.fatalf(diag.ErrorInternal, format, args...)
}

func (ctx *Context) fatalf(code, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)

	var annotations map[*nir.Instr]string
	if ctx.curInstr != nil {
		annotations = map[*nir.Instr]string{ctx.curInstr: msg}
	} else {
		log.Errorf("%s", msg)
	}

	fe := &FatalError{Code: code, Message: msg, Instr: ctx.curInstr}
	if ctx.S != nil {
		fe.Dump = nir.PrintAnnotated(ctx.S, annotations)
		log.Debugf("%s", fe.Dump)
	}
	ctx.err = fe
	panic(fe)
}

// Err returns the fatal error that aborted the compile, if any
func (ctx *Context) Err() error {
	if ctx.err == nil {
		return nil
	}
	return ctx.err
}

// Recover turns a FatalError panic into *errp. It must be deferred
// directly. Other panics are re-raised.
func (ctx *Context) Recover(errp *error) {
	r := recover()
	if r == nil {
		return
	}
	fe, ok := r.(*FatalError)
	if !ok {
		panic(r)
	}
	*errp = fe
}

// Run calls fn and returns the FatalError it raised, if any
func Run(ctx *Context, fn func(*Context)) (err error) {
	defer ctx.Recover(&err)
	fn(ctx)
	return nil
}

// AsFatal reports whether err is or wraps a FatalError
func AsFatal(err error) (*FatalError, bool) {
	var fe *FatalError
	if errors.As(err, &fe) {
		return fe, true
	}
	return nil, false
}
