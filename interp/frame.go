package interp

import (
	"math"

	"github.com/clrhost/clrhost/il"
	"github.com/clrhost/clrhost/metadata"
	"github.com/clrhost/clrhost/rterr"
)

// ECMA-335 §II.25.4.6 CorILExceptionClause kind bits; LLExceptionClause.Flags
// carries them through unchanged from image.ExceptionClause.
const (
	clauseException uint32 = 0x0000
	clauseFilter    uint32 = 0x0001
	clauseFinally   uint32 = 0x0002
	clauseFault     uint32 = 0x0004
)

// frame is one activation record (clrhost §4.4): the lowered method body,
// instruction pointer, locals/args slots, and this frame's operand stack.
type frame struct {
	interp   *Interpreter
	method   *metadata.Method
	lm       *il.LowMethod
	module   *metadata.Module
	ip       int
	args     []uint64
	locals   []uint64
	stack    []uint64
	retSlots []uint64
	depth    int
	liveRefs []*Object
	// leaveStack holds, per pending leave-with-finally still unwinding,
	// the remaining [finallyHandler..., resumeTarget] chain a
	// LeaveTryWithFinally/LeaveCatchWithFinally pushed (clrhost §4.4
	// "pending-leave record"); endfinally pops the next entry off the
	// top-of-stack record and jumps to it.
	leaveStack [][]int
}

func (f *frame) push(v uint64) error {
	if len(f.stack) >= f.interp.opts.MaxEvalStackDepth {
		return rterr.New(rterr.StackOverflow, "eval stack exceeded %d slots in %s", f.interp.opts.MaxEvalStackDepth, f.method.Name)
	}
	f.stack = append(f.stack, v)
	return nil
}

func (f *frame) pop() (uint64, error) {
	n := len(f.stack)
	if n == 0 {
		return 0, rterr.New(rterr.ExecutionEngine, "eval stack underflow in %s", f.method.Name)
	}
	v := f.stack[n-1]
	f.stack = f.stack[:n-1]
	return v, nil
}

func (f *frame) popObj() (*Object, error) {
	v, err := f.pop()
	if err != nil {
		return nil, err
	}
	return uintToObj(v), nil
}

// run executes the method body to completion, writing any return value
// into f.retSlots (clrhost §4.4 dispatch loop).
func (f *frame) run() error {
	if f.lm.InitLocals {
		for i := range f.locals {
			f.locals[i] = 0
		}
	}
	for f.ip < len(f.lm.Insns) {
		in := f.lm.Insns[f.ip]
		next, retErr := f.step(in)
		if retErr != nil {
			handlerIP, excObj, ok := f.findHandler(f.ip, retErr)
			if !ok {
				return retErr
			}
			f.stack = f.stack[:0]
			if err := f.pushObj(excObj); err != nil {
				return err
			}
			f.ip = handlerIP
			continue
		}
		if next == ipReturn {
			return nil
		}
		f.ip = next
	}
	return nil
}

const ipReturn = -1

// findHandler walks the method's clause table looking for the first
// Exception/Filter clause whose try range contains ip, matching a typed
// catch clause's class token against err's runtime class and running
// any filter region to get its verdict (clrhost §4.4 "exception
// handling" steps 1-3). Finally/fault clauses are not themselves
// handlers for a propagating exception; they are reached via the
// leave-with-finally chain a LeaveTryWithFinally/endfinally pair
// drives, not by unwind search. Returns the handler IP, the Object the
// handler's eval stack should receive, and whether a clause matched.
func (f *frame) findHandler(ip int, err error) (int, *Object, bool) {
	for _, c := range f.lm.Clauses {
		if ip < c.TryStart || ip >= c.TryEnd {
			continue
		}
		switch c.Flags & 0x7 {
		case clauseException:
			if c.ClassToken == 0 || classMatchesToken(f, err, c.ClassToken) {
				return c.HandlerStart, exceptionObjectOf(f, err), true
			}
		case clauseFilter:
			obj := exceptionObjectOf(f, err)
			matched, ferr := f.runFilterClause(c, obj)
			if ferr == nil && matched {
				return c.HandlerStart, obj, true
			}
		}
	}
	return 0, nil, false
}

// classMatchesToken decides whether err's runtime class satisfies a
// typed catch clause naming tok (clrhost §4.4 step 1 "class/filter
// accepts the object"). System.Exception and System.Object are treated
// as universal catch-alls, matching the dominant `catch (Exception e)`
// pattern; any other target requires an exact namespace+name match
// against err's class, since the synthesized BCL stub classes this core
// uses (see metadata.Module.externalClass) carry no populated
// inheritance chain for a full isInstanceOf walk. An unresolvable
// clause token or an error with no determinable class fails open
// (treated as a match), since a narrower refusal here would silently
// swallow the exception instead of delivering it to the nearest
// plausible handler.
func classMatchesToken(f *frame, err error, tok uint32) bool {
	if f.module == nil {
		return true
	}
	resolved, rerr := f.module.ResolveToken(metadata.TokenFromRaw(tok), metadata.GenericContainerContext{})
	if rerr != nil {
		return true
	}
	target, ok := resolved.(*metadata.Class)
	if !ok {
		return true
	}
	if target.Namespace == "System" && (target.Name == "Exception" || target.Name == "Object") {
		return true
	}
	actual := exceptionClassOf(f, err)
	if actual == nil {
		return true
	}
	return actual.Namespace == target.Namespace && actual.Name == target.Name
}

// wrapException boxes an rterr.Error as the Object a catch handler's
// eval stack receives, per clrhost §4.4 step 2 ("push the exception on
// the eval stack"), giving it the BCL stub Class exceptionClassFor maps
// its Kind to so a typed catch clause downstream can match it.
func wrapException(f *frame, e *rterr.Error) *Object {
	return &Object{Class: exceptionClassFor(f, e.Kind), Data: []byte(e.Error())}
}

// runFilterClause executes a filter region to get the boolean verdict
// that decides whether its catch body runs (clrhost §4.4 "endfilter(cond)
// returns a boolean deciding the catch"). It runs in the frame's own
// locals/args with a fresh eval stack seeded with the exception object,
// and restores f.ip/f.stack before returning regardless of outcome. A
// fault raised by the filter region itself is treated as a non-match
// rather than a newly propagating exception, since the filter is not
// itself protected by any clause.
func (f *frame) runFilterClause(c il.LLExceptionClause, excObj *Object) (bool, error) {
	savedIP, savedStack := f.ip, f.stack
	defer func() { f.ip, f.stack = savedIP, savedStack }()

	f.stack = nil
	if err := f.pushObj(excObj); err != nil {
		return false, err
	}
	ip := c.FilterStart
	for {
		f.ip = ip
		in := f.lm.Insns[ip]
		if in.Op == il.OpEndFilter {
			v, err := f.pop()
			if err != nil {
				return false, nil
			}
			return int32(v) != 0, nil
		}
		next, err := f.step(in)
		if err != nil {
			return false, nil
		}
		if next == ipReturn {
			return false, nil
		}
		ip = next
	}
}

func objToUint(o *Object) uint64 {
	return uint64(uintptr(objPtr(o)))
}

// step executes one instruction and returns either the next ip
// (ipReturn for a completed return) or an error for the dispatch loop's
// exception-clause search to handle.
func (f *frame) step(in il.LLInsn) (int, error) {
	switch in.Op {
	case il.OpNop:
		return f.ip + 1, nil
	case il.OpDup:
		v, err := f.pop()
		if err != nil {
			return 0, err
		}
		if err := f.push(v); err != nil {
			return 0, err
		}
		if err := f.push(v); err != nil {
			return 0, err
		}
		return f.ip + 1, nil
	case il.OpPop:
		if _, err := f.pop(); err != nil {
			return 0, err
		}
		return f.ip + 1, nil

	case il.OpLdArgI4, il.OpLdArgAny:
		idx := int(in.IntOperand)
		if idx < 0 || idx >= len(f.args) {
			return 0, rterr.New(rterr.ExecutionEngine, "ldarg index %d out of range", idx)
		}
		return f.ip + 1, f.push(f.args[idx])
	case il.OpStArgAny:
		v, err := f.pop()
		if err != nil {
			return 0, err
		}
		idx := int(in.IntOperand)
		if idx < 0 || idx >= len(f.args) {
			return 0, rterr.New(rterr.ExecutionEngine, "starg index %d out of range", idx)
		}
		f.args[idx] = v
		return f.ip + 1, nil

	case il.OpLdLocI4, il.OpLdLocI8, il.OpLdLocR4, il.OpLdLocR8, il.OpLdLocAny:
		idx := int(in.IntOperand)
		if idx < 0 || idx >= len(f.locals) {
			return 0, rterr.New(rterr.ExecutionEngine, "ldloc index %d out of range", idx)
		}
		return f.ip + 1, f.push(f.locals[idx])
	case il.OpStLocI4, il.OpStLocI8, il.OpStLocAny:
		v, err := f.pop()
		if err != nil {
			return 0, err
		}
		idx := int(in.IntOperand)
		if idx < 0 || idx >= len(f.locals) {
			return 0, rterr.New(rterr.ExecutionEngine, "stloc index %d out of range", idx)
		}
		f.locals[idx] = v
		return f.ip + 1, nil
	case il.OpLdLoca:
		// an interior pointer to the local slot itself; represented as
		// the slot's index packed into the pointer-shaped value since
		// this core's locals are a Go slice, not an addressable arena.
		return f.ip + 1, f.push(uint64(in.IntOperand) | localPtrTag)

	case il.OpLdNull:
		return f.ip + 1, f.push(0)
	case il.OpLdcI4, il.OpLdcI8:
		return f.ip + 1, f.push(uint64(in.IntOperand))
	case il.OpLdcR4:
		return f.ip + 1, f.push(uint64(uint32(in.IntOperand)))
	case il.OpLdcR8:
		return f.ip + 1, f.push(uint64(in.IntOperand))
	case il.OpLdStr:
		s, err := f.resolveAs(in.IntOperand)
		if err != nil {
			return 0, err
		}
		str, ok := s.(string)
		if !ok {
			return 0, rterr.New(rterr.BadImageFormat, "ldstr resolved-data index %d is not a string", in.IntOperand)
		}
		return f.ip + 1, f.pushObj(&Object{Data: []byte(str)})

	case il.OpBr:
		return in.Targets[0], nil
	case il.OpBrTrueI4:
		v, err := f.pop()
		if err != nil {
			return 0, err
		}
		if int32(v) != 0 {
			return in.Targets[0], nil
		}
		return f.ip + 1, nil
	case il.OpBrFalseI4:
		v, err := f.pop()
		if err != nil {
			return 0, err
		}
		if int32(v) == 0 {
			return in.Targets[0], nil
		}
		return f.ip + 1, nil
	case il.OpBeqI4, il.OpBgeI4, il.OpBgtI4, il.OpBleI4, il.OpBltI4, il.OpBneUnI4,
		il.OpBeqI8, il.OpBgeI8, il.OpBgtI8, il.OpBleI8, il.OpBltI8, il.OpBneUnI8:
		return f.branchCmp(in)
	case il.OpSwitch:
		v, err := f.pop()
		if err != nil {
			return 0, err
		}
		idx := int32(v)
		if idx >= 0 && int(idx) < len(in.Targets) {
			return in.Targets[idx], nil
		}
		return f.ip + 1, nil

	case il.OpAddI4, il.OpSubI4, il.OpMulI4, il.OpDivI4, il.OpDivUnI4, il.OpRemI4, il.OpRemUnI4,
		il.OpAndI4, il.OpOrI4, il.OpXorI4, il.OpShlI4, il.OpShrI4, il.OpShrUnI4,
		il.OpAddOvfI4, il.OpAddOvfUnI4, il.OpSubOvfI4, il.OpSubOvfUnI4, il.OpMulOvfI4, il.OpMulOvfUnI4:
		return f.binI4(in.Op)
	case il.OpAddI8, il.OpSubI8, il.OpMulI8, il.OpDivI8, il.OpDivUnI8, il.OpRemI8, il.OpRemUnI8,
		il.OpAndI8, il.OpOrI8, il.OpXorI8, il.OpShlI8, il.OpShrI8, il.OpShrUnI8,
		il.OpAddOvfI8, il.OpAddOvfUnI8, il.OpSubOvfI8, il.OpSubOvfUnI8, il.OpMulOvfI8, il.OpMulOvfUnI8:
		return f.binI8(in.Op)
	case il.OpAddR4, il.OpSubR4, il.OpMulR4, il.OpDivR4:
		return f.binR4(in.Op)
	case il.OpAddR8, il.OpSubR8, il.OpMulR8, il.OpDivR8:
		return f.binR8(in.Op)
	case il.OpNegI4:
		v, err := f.pop()
		if err != nil {
			return 0, err
		}
		return f.ip + 1, f.push(uint64(uint32(-int32(v))))
	case il.OpNegI8:
		v, err := f.pop()
		if err != nil {
			return 0, err
		}
		return f.ip + 1, f.push(uint64(-int64(v)))
	case il.OpNegR4:
		v, err := f.pop()
		if err != nil {
			return 0, err
		}
		return f.ip + 1, f.push(f32bits(-bitsf32(v)))
	case il.OpNegR8:
		v, err := f.pop()
		if err != nil {
			return 0, err
		}
		return f.ip + 1, f.push(f64bits(-bitsf64(v)))
	case il.OpNotI4:
		v, err := f.pop()
		if err != nil {
			return 0, err
		}
		return f.ip + 1, f.push(uint64(uint32(^int32(v))))
	case il.OpNotI8:
		v, err := f.pop()
		if err != nil {
			return 0, err
		}
		return f.ip + 1, f.push(^v)

	case il.OpCeqI4, il.OpCgtI4, il.OpCgtUnI4, il.OpCltI4, il.OpCltUnI4,
		il.OpCeqI8, il.OpCgtI8, il.OpCltI8, il.OpCeqR4, il.OpCeqR8:
		return f.cmp(in.Op)

	case il.OpConvI1I4, il.OpConvU1I4, il.OpConvI2I4, il.OpConvU2I4:
		return f.convNarrow(in.Op)
	case il.OpConvI4I8:
		v, err := f.pop()
		if err != nil {
			return 0, err
		}
		return f.ip + 1, f.push(uint64(int64(int32(v))))
	case il.OpConvI8I4:
		v, err := f.pop()
		if err != nil {
			return 0, err
		}
		return f.ip + 1, f.push(uint64(uint32(v)))
	case il.OpConvR4I4:
		v, err := f.pop()
		if err != nil {
			return 0, err
		}
		return f.ip + 1, f.push(f32bits(float32(int32(v))))
	case il.OpConvR8I4:
		v, err := f.pop()
		if err != nil {
			return 0, err
		}
		return f.ip + 1, f.push(f64bits(float64(int32(v))))
	case il.OpConvI4R4:
		v, err := f.pop()
		if err != nil {
			return 0, err
		}
		return f.ip + 1, f.push(uint64(uint32(int32(bitsf32(v)))))
	case il.OpConvI4R8:
		v, err := f.pop()
		if err != nil {
			return 0, err
		}
		return f.ip + 1, f.push(uint64(uint32(int32(bitsf64(v)))))
	case il.OpConvOvfI4I8, il.OpConvOvfU4I8:
		return f.convOvf(in.Op)
	case il.OpCkfiniteR4:
		v, err := f.pop()
		if err != nil {
			return 0, err
		}
		fv := bitsf32(v)
		if math.IsNaN(float64(fv)) || math.IsInf(float64(fv), 0) {
			return 0, rterr.New(rterr.Arithmetic, "ckfinite: non-finite r4 value")
		}
		return f.ip + 1, f.push(v)
	case il.OpCkfiniteR8:
		v, err := f.pop()
		if err != nil {
			return 0, err
		}
		fv := bitsf64(v)
		if math.IsNaN(fv) || math.IsInf(fv, 0) {
			return 0, rterr.New(rterr.Arithmetic, "ckfinite: non-finite r8 value")
		}
		return f.ip + 1, f.push(v)

	case il.OpRetVoid:
		return ipReturn, nil
	case il.OpRetI4:
		v, err := f.pop()
		if err != nil {
			return 0, err
		}
		f.retSlots = []uint64{v}
		return ipReturn, nil
	case il.OpRetI8, il.OpRetAny:
		v, err := f.pop()
		if err != nil {
			return 0, err
		}
		f.retSlots = []uint64{v}
		return ipReturn, nil

	case il.OpThrow:
		v, err := f.pop()
		if err != nil {
			return 0, err
		}
		return 0, exceptionFromObject(uintToObj(v))
	case il.OpRethrow:
		return 0, rterr.New(rterr.ExecutionEngine, "rethrow outside an active catch")
	case il.OpEndFinally, il.OpEndFault:
		// resume the next step of whichever leave-with-finally chain is
		// currently unwinding through this frame (clrhost §4.4 "after the
		// last endfinally the target is resumed"); outside any pending
		// leave (e.g. a fault clause reached by unwind rather than leave)
		// there is nothing to resume into, so fall through normally.
		if n := len(f.leaveStack); n > 0 {
			rest := f.leaveStack[n-1]
			next := rest[0]
			if len(rest) > 1 {
				f.leaveStack[n-1] = rest[1:]
			} else {
				f.leaveStack = f.leaveStack[:n-1]
			}
			return next, nil
		}
		return f.ip + 1, nil
	case il.OpEndFilter:
		v, err := f.pop()
		if err != nil {
			return 0, err
		}
		if int32(v) != 0 {
			return f.ip + 1, nil
		}
		return f.ip + 1, nil
	case il.OpLeaveCatchWithoutFinally:
		if len(in.Targets) == 0 {
			return 0, rterr.New(rterr.BadImageFormat, "leave with no target")
		}
		return in.Targets[0], nil
	case il.OpLeaveTryWithFinally, il.OpLeaveCatchWithFinally:
		if len(in.Targets) < 2 {
			return 0, rterr.New(rterr.BadImageFormat, "leave-with-finally has no finally chain")
		}
		f.leaveStack = append(f.leaveStack, in.Targets[1:])
		return in.Targets[0], nil

	case il.OpInitObj:
		addr, err := f.pop()
		if err != nil {
			return 0, err
		}
		if addr&localPtrTag != 0 {
			idx := int(addr &^ localPtrTag)
			if idx < 0 || idx >= len(f.locals) {
				return 0, rterr.New(rterr.ExecutionEngine, "initobj: local index %d out of range", idx)
			}
			f.locals[idx] = 0
			return f.ip + 1, nil
		}
		if o := uintToObj(addr); o != nil {
			for i := range o.Data {
				o.Data[i] = 0
			}
		}
		return f.ip + 1, nil
	case il.OpBox:
		return f.box(in)
	case il.OpUnbox:
		return f.unbox(in)
	case il.OpUnboxAny:
		return f.unboxAny(in)
	case il.OpCastClass:
		return f.castClass(in)
	case il.OpIsInst:
		return f.isInst(in)

	case il.OpNewObjInterp, il.OpNewValueTypeInterp, il.OpNewObjInternalCall, il.OpNewObjIntrinsic:
		return f.newObj(in)
	case il.OpCallInterp, il.OpCallVirtInterp, il.OpCallInternalCall, il.OpCallIntrinsic,
		il.OpCallPInvoke, il.OpCallRuntimeImplemented:
		return f.call(in)
	case il.OpCalliInterp:
		return f.calli(in)
	case il.OpLdftn, il.OpLdvirtftn:
		m, err := f.resolveMethod(in.IntOperand)
		if err != nil {
			return 0, err
		}
		if in.Op == il.OpLdvirtftn {
			recv, err := f.popObj()
			if err != nil {
				return 0, err
			}
			if dispatched, ok := virtualTarget(recv.Class, m); ok {
				m = dispatched
			}
		}
		return f.ip + 1, f.push(uint64(registerMethodPtr(m)))

	case il.OpNewArr:
		return f.newArr(in)
	case il.OpLdLen:
		o, err := f.popObj()
		if err != nil {
			return 0, err
		}
		if o == nil {
			return 0, rterr.New(rterr.NullReference, "ldlen on null array")
		}
		return f.ip + 1, f.push(uint64(len(o.Elems)))
	case il.OpLdelema, il.OpLdelemI1, il.OpLdelemU1, il.OpLdelemI2, il.OpLdelemU2,
		il.OpLdelemI4, il.OpLdelemI8, il.OpLdelemR4, il.OpLdelemR8, il.OpLdelemRef, il.OpLdelemAnyVal:
		return f.ldelem(in)
	case il.OpStelemI1, il.OpStelemI2, il.OpStelemI4, il.OpStelemI8,
		il.OpStelemR4, il.OpStelemR8, il.OpStelemRef, il.OpStelemAnyVal:
		return f.stelem(in)

	case il.OpLdfld, il.OpLdflda:
		return f.ldfld(in)
	case il.OpStfld:
		return f.stfld(in)
	case il.OpLdsfld, il.OpLdsflda:
		return f.ldsfld(in)
	case il.OpStsfld:
		return f.stsfld(in)

	case il.OpLocAlloc:
		n, err := f.pop()
		if err != nil {
			return 0, err
		}
		return f.ip + 1, f.pushObj(&Object{Data: make([]byte, n)})
	case il.OpCpBlk, il.OpInitBlk:
		if _, err := f.pop(); err != nil {
			return 0, err
		}
		if _, err := f.pop(); err != nil {
			return 0, err
		}
		_, err := f.pop()
		return f.ip + 1, err

	default:
		return 0, rterr.New(rterr.NotImplemented, "interpreter: opcode %s not implemented", in.Op)
	}
}

func (f *frame) resolveAs(idx int64) (interface{}, error) {
	if idx < 0 || int(idx) >= len(f.lm.ResolvedData) {
		return nil, rterr.New(rterr.BadImageFormat, "resolved-data index %d out of range", idx)
	}
	v := f.lm.ResolvedData[idx]
	tok, isTok := v.(metadata.Token)
	if !isTok {
		return v, nil
	}
	gcc := metadata.GenericContainerContext{}
	if f.method.Parent != nil {
		gcc.Class = f.method.Parent.GenericContainer
	}
	resolved, err := f.module.ResolveToken(tok, gcc)
	if err != nil {
		return nil, err
	}
	f.lm.ResolvedData[idx] = resolved
	return resolved, nil
}

func (f *frame) resolveMethod(idx int64) (*metadata.Method, error) {
	v, err := f.resolveAs(idx)
	if err != nil {
		return nil, err
	}
	m, ok := v.(*metadata.Method)
	if !ok {
		return nil, rterr.New(rterr.BadImageFormat, "resolved-data index %d is not a method", idx)
	}
	return m, nil
}

func (f *frame) resolveClass(idx int64) (*metadata.Class, error) {
	v, err := f.resolveAs(idx)
	if err != nil {
		return nil, err
	}
	c, ok := v.(*metadata.Class)
	if !ok {
		return nil, rterr.New(rterr.BadImageFormat, "resolved-data index %d is not a class", idx)
	}
	return c, nil
}

func (f *frame) resolveField(idx int64) (*metadata.Field, error) {
	v, err := f.resolveAs(idx)
	if err != nil {
		return nil, err
	}
	fld, ok := v.(*metadata.Field)
	if !ok {
		return nil, rterr.New(rterr.BadImageFormat, "resolved-data index %d is not a field", idx)
	}
	return fld, nil
}
