package interp

import (
	"github.com/clrhost/clrhost/metadata"
	"github.com/clrhost/clrhost/rterr"
)

// thrownException wraps a managed object thrown by OpThrow so that
// findHandler can recover the object's actual Class for typed-catch
// matching, rather than flattening every throw into a message string
// (clrhost §4.4 "push the exception on the eval stack").
type thrownException struct {
	obj *Object
}

func (t *thrownException) Error() string {
	if t.obj != nil && t.obj.Class != nil {
		return classNameOf(t.obj.Class)
	}
	return "exception"
}

// exceptionClassNames maps the runtime's internal error taxonomy to the
// BCL exception type name a catch clause would name, for the errors
// this core itself raises (null dereference, array bounds, and so on)
// rather than a user throw. Kinds with no natural BCL counterpart (e.g.
// ExecutionEngine) are left unmapped and fall back to a universal-catch
// match in classMatchesToken.
var exceptionClassNames = map[rterr.Kind]string{
	rterr.NullReference:      "NullReferenceException",
	rterr.IndexOutOfRange:    "IndexOutOfRangeException",
	rterr.InvalidCast:        "InvalidCastException",
	rterr.Overflow:           "OverflowException",
	rterr.DivideByZero:       "DivideByZeroException",
	rterr.Arithmetic:         "ArithmeticException",
	rterr.StackOverflow:      "StackOverflowException",
	rterr.OutOfMemory:        "OutOfMemoryException",
	rterr.TypeLoad:           "TypeLoadException",
	rterr.MissingField:       "MissingFieldException",
	rterr.MissingMethod:      "MissingMethodException",
	rterr.BadImageFormat:     "BadImageFormatException",
	rterr.Argument:           "ArgumentException",
	rterr.ArgumentOutOfRange: "ArgumentOutOfRangeException",
	rterr.FileNotFound:       "FileNotFoundException",
	rterr.NotImplemented:     "NotImplementedException",
}

// exceptionClassFor resolves kind's BCL exception class name to the
// module's synthesized stub Class, or nil if the frame has no module
// (construction-time frames) or the kind has no BCL counterpart.
func exceptionClassFor(f *frame, kind rterr.Kind) *metadata.Class {
	if f == nil || f.module == nil {
		return nil
	}
	name, ok := exceptionClassNames[kind]
	if !ok {
		return nil
	}
	return f.module.BuiltinExceptionClass(name)
}

// exceptionClassOf returns the runtime Class a propagating error should
// be matched against by a typed catch clause: the thrown object's own
// Class for a managed throw, or the BCL stub Class exceptionClassFor
// maps an *rterr.Error's Kind to. Returns nil when no Class can be
// determined, which classMatchesToken treats as an unresolvable match.
func exceptionClassOf(f *frame, err error) *metadata.Class {
	switch e := err.(type) {
	case *thrownException:
		if e.obj != nil {
			return e.obj.Class
		}
		return nil
	case *rterr.Error:
		return exceptionClassFor(f, e.Kind)
	default:
		return nil
	}
}

// exceptionObjectOf returns the Object a catch handler's eval stack
// receives for a propagating error: the original thrown object for a
// managed throw, or a freshly boxed wrapper for a runtime-raised
// *rterr.Error (clrhost §4.4 step 2).
func exceptionObjectOf(f *frame, err error) *Object {
	switch e := err.(type) {
	case *thrownException:
		return e.obj
	case *rterr.Error:
		return wrapException(f, e)
	default:
		return &Object{Data: []byte(err.Error())}
	}
}
