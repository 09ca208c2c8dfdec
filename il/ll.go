package il

import (
	"fmt"
	"sort"

	"github.com/clrhost/clrhost/image"
	"github.com/clrhost/clrhost/metadata"
)

// LowMethod is the output of the two-pass transformer: a flat array of LL
// instructions plus the tables the interpreter consults at dispatch time
// instead of re-decoding tokens on every execution (clrhost §4.3 "resolved
// data table").
type LowMethod struct {
	Insns        []LLInsn
	MaxStack     uint16
	NumLocals    uint16
	LocalSigs    []*metadata.TypeSignature
	InitLocals   bool
	Clauses      []LLExceptionClause
	ResolvedData []interface{} // tokens resolved once: *metadata.Method, *metadata.Class, *metadata.Field, ...
}

// LLInsn is one lowered instruction: a flat opcode variant plus at most one
// operand, already resolved to its final form (an IR instruction index for
// branches, a slot index for locals/args, or an index into ResolvedData).
type LLInsn struct {
	Op         Op
	IntOperand int64 // immediate, slot index, or ResolvedData index
	Targets    []int // branch target instruction indices (post-fixpoint)
}

// LLExceptionClause is an image.ExceptionClause with its IL-byte offsets
// translated to LL instruction indices (clrhost §4.3 "exception clause
// translation").
type LLExceptionClause struct {
	Flags                    uint32
	TryStart, TryEnd         int
	HandlerStart, HandlerEnd int
	FilterStart              int
	ClassToken               uint32
}

// lowerCtx carries the per-method state lowerOne needs: argument/local
// reduce types (for ldarg/ldloc/ret width selection) and a best-effort
// forward stack-type tracker for the binary/unary opcodes CIL itself
// leaves untyped (add, sub, ceq, conv, ...). The tracker walks the
// instruction stream in program order without modeling control-flow
// merges; verifiable CIL guarantees every merge point sees the same stack
// shape regardless of path, so a single forward pass already gets the
// common case right.
type lowerCtx struct {
	method    *metadata.Method
	argTypes  []metadata.ReduceType
	localTypes []metadata.ReduceType
	retType   metadata.ReduceType
	stack     []stackType
	clauses   []exceptionClauseIL
}

func (c *lowerCtx) push(t stackType) { c.stack = append(c.stack, t) }
func (c *lowerCtx) pop() stackType {
	if len(c.stack) == 0 {
		return stackI4
	}
	t := c.stack[len(c.stack)-1]
	c.stack = c.stack[:len(c.stack)-1]
	return t
}
func (c *lowerCtx) popN(n int) []stackType {
	out := make([]stackType, n)
	for i := n - 1; i >= 0; i-- {
		out[i] = c.pop()
	}
	return out
}

func reduceToStack(r metadata.ReduceType) stackType {
	switch r {
	case metadata.ReduceI8:
		return stackI8
	case metadata.ReduceR4:
		return stackR4
	case metadata.ReduceR8:
		return stackR8
	case metadata.ReduceRef:
		return stackRef
	default:
		return stackI4
	}
}

// Lower runs the HL+LL transformer over a method's decoded body, producing
// the form the interpreter actually dispatches on (clrhost §4.3). The
// result is cached on method.InterpBody by the caller.
func Lower(method *metadata.Method, body *image.MethodBody) (*LowMethod, error) {
	insns, err := decodeCIL(body.Code)
	if err != nil {
		return nil, err
	}

	ilClauses := make([]exceptionClauseIL, len(body.ExceptionClauses))
	for i, c := range body.ExceptionClauses {
		ilClauses[i] = exceptionClauseIL{
			Flags: c.Flags, TryOffset: c.TryOffset, TryLength: c.TryLength,
			HandlerOffset: c.HandlerOffset, HandlerLength: c.HandlerLength,
			ClassToken: c.ClassToken, FilterOffset: c.FilterOffset,
		}
	}

	blocks := buildBasicBlocks(insns, ilClauses)
	_ = blocks // leader/block shape already folds into the flat lowering below

	lm := &LowMethod{MaxStack: body.MaxStack, InitLocals: body.InitLocals}

	if body.LocalVarSigTok != 0 {
		sigs, err := method.Parent.Image.ReadLocalVarSig(body.LocalVarSigTok)
		if err != nil {
			return nil, err
		}
		lm.LocalSigs = sigs
		lm.NumLocals = uint16(len(sigs))
	}

	ctx := &lowerCtx{method: method, retType: metadata.ReduceVoid, clauses: ilClauses}
	if method.ReturnSig != nil {
		ctx.retType = method.ReturnSig.Reduce()
	}
	if !method.IsStatic() {
		ctx.argTypes = append(ctx.argTypes, metadata.ReduceRef)
	}
	for _, p := range method.Params {
		ctx.argTypes = append(ctx.argTypes, p.Reduce())
	}
	for _, s := range lm.LocalSigs {
		ctx.localTypes = append(ctx.localTypes, s.Reduce())
	}

	// Pass 1: lower every CIL instruction to zero or more LL instructions,
	// recording each CIL offset's corresponding first-LL-instruction index
	// so branch targets (still CIL offsets at this point) can be patched in
	// pass 2. Widths are uniform per instruction here, so a single pass
	// suffices instead of iterating to a byte-displacement fixed point.
	offsetToIdx := make(map[int]int, len(insns))
	for _, in := range insns {
		offsetToIdx[in.Offset] = len(lm.Insns)
		lowered, err := lowerOne(ctx, in, lm)
		if err != nil {
			return nil, fmt.Errorf("method %s: %w", method.Name, err)
		}
		lm.Insns = append(lm.Insns, lowered...)
	}
	endIdx := len(lm.Insns)

	// Pass 2: patch branch targets from CIL offsets to LL indices.
	for i := range lm.Insns {
		for j, t := range lm.Insns[i].Targets {
			lm.Insns[i].Targets[j] = resolveIdx(offsetToIdx, t, endIdx)
		}
	}

	lm.Clauses = make([]LLExceptionClause, len(ilClauses))
	for i, c := range ilClauses {
		lm.Clauses[i] = LLExceptionClause{
			Flags:        c.Flags,
			TryStart:     resolveIdx(offsetToIdx, int(c.TryOffset), endIdx),
			TryEnd:       resolveIdx(offsetToIdx, int(c.TryOffset+c.TryLength), endIdx),
			HandlerStart: resolveIdx(offsetToIdx, int(c.HandlerOffset), endIdx),
			HandlerEnd:   resolveIdx(offsetToIdx, int(c.HandlerOffset+c.HandlerLength), endIdx),
			ClassToken:   c.ClassToken,
		}
		if c.FilterOffset != 0 {
			lm.Clauses[i].FilterStart = resolveIdx(offsetToIdx, int(c.FilterOffset), endIdx)
		}
	}

	return lm, nil
}

func resolveIdx(m map[int]int, off, end int) int {
	if idx, ok := m[off]; ok {
		return idx
	}
	return end
}

// inHandlerBody reports whether ilOffset falls inside some clause's
// catch or filter-catch handler region, distinguishing a leave that
// exits a catch block from one that exits an ordinary try block
// (clrhost §4.3 leave lowering picks LeaveCatchWithFinally vs.
// LeaveTryWithFinally on exactly this distinction).
func inHandlerBody(clauses []exceptionClauseIL, ilOffset int) bool {
	off := uint32(ilOffset)
	for _, c := range clauses {
		if c.Flags&0x7 != clauseException && c.Flags&0x7 != clauseFilter {
			continue
		}
		if off >= c.HandlerOffset && off < c.HandlerOffset+c.HandlerLength {
			return true
		}
	}
	return false
}

// finallyChain returns the ordered list of finally-handler IL offsets a
// leave from origin to target must run before resuming at target
// (clrhost §4.4 "pending-leave record"): every Finally clause whose try
// range encloses origin but not target, innermost first, followed by
// target itself. A leave guarded by no finally returns a single-element
// slice holding just target.
func finallyChain(clauses []exceptionClauseIL, origin, target int) []int {
	type guard struct {
		handlerOffset int
		tryLength     uint32
	}
	var guards []guard
	o, t := uint32(origin), uint32(target)
	for _, c := range clauses {
		if c.Flags&0x7 != clauseFinally {
			continue
		}
		if o < c.TryOffset || o >= c.TryOffset+c.TryLength {
			continue
		}
		if t >= c.TryOffset && t < c.TryOffset+c.TryLength {
			continue
		}
		guards = append(guards, guard{handlerOffset: int(c.HandlerOffset), tryLength: c.TryLength})
	}
	sort.Slice(guards, func(i, j int) bool { return guards[i].tryLength < guards[j].tryLength })
	chain := make([]int, 0, len(guards)+1)
	for _, g := range guards {
		chain = append(chain, g.handlerOffset)
	}
	chain = append(chain, target)
	return chain
}

// ECMA-335 §II.25.4.6 clause-kind bits, mirrored from the interpreter's
// copy (interp package) since exception clause kinds are part of the
// file format both packages decode independently.
const (
	clauseException uint32 = 0x0000
	clauseFilter    uint32 = 0x0001
	clauseFinally   uint32 = 0x0002
)

// lowerOne selects the LL opcode variant(s) for a single CIL instruction.
// This is a representative mapping (clrhost's LL family has one flat
// opcode per operand type/width combination; the tracked stack types pick
// among the typed variants actually catalogued here).
func lowerOne(ctx *lowerCtx, in cilInsn, lm *LowMethod) ([]LLInsn, error) {
	switch in.Op {
	case cilNop, cilBreak, cilUnaligned, cilVolatile, cilTail, cilConstrained, cilReadonly:
		return nil, nil
	case cilDup:
		t := ctx.pop()
		ctx.push(t)
		ctx.push(t)
		return one(OpDup, 0), nil
	case cilPop:
		ctx.pop()
		return one(OpPop, 0), nil
	case cilRet:
		switch ctx.retType {
		case metadata.ReduceVoid:
			return one(OpRetVoid, 0), nil
		case metadata.ReduceI8:
			ctx.pop()
			return one(OpRetI8, 0), nil
		case metadata.ReduceR4, metadata.ReduceR8:
			ctx.pop()
			return one(OpRetAny, 0), nil
		default:
			ctx.pop()
			return one(OpRetI4, 0), nil
		}
	case cilThrow:
		ctx.pop()
		return one(OpThrow, 0), nil
	case cilRethrow:
		return one(OpThrow, 0), nil
	case cilEndfinally:
		return one(OpEndFinally, 0), nil
	case cilEndfilter:
		ctx.pop()
		return one(OpEndFilter, 0), nil
	case cilLocalloc:
		return one(OpLocAlloc, 0), nil

	case cilLdarg0, cilLdarg0 + 1, cilLdarg0 + 2, cilLdarg3:
		idx := int(in.Op - cilLdarg0)
		return ldarg(ctx, idx), nil
	case cilLdargS, cilLdarg:
		return ldarg(ctx, int(in.IntOperand)), nil
	case cilLdarga, cilLdargaS:
		ctx.push(stackByRef)
		return one(OpLdArgAny, in.IntOperand), nil
	case cilStargS, cilStarg:
		ctx.pop()
		return one(OpStArgAny, in.IntOperand), nil
	case cilLdloc0, cilLdloc0 + 1, cilLdloc0 + 2, cilLdloc3:
		idx := int(in.Op - cilLdloc0)
		return ldloc(ctx, idx), nil
	case cilLdlocS, cilLdloc:
		return ldloc(ctx, int(in.IntOperand)), nil
	case cilLdlocaS, cilLdloca:
		ctx.push(stackByRef)
		return one(OpLdLoca, in.IntOperand), nil
	case cilStloc0, cilStloc0 + 1, cilStloc0 + 2, cilStloc3:
		return stloc(ctx, int(in.Op-cilStloc0)), nil
	case cilStlocS, cilStloc:
		return stloc(ctx, int(in.IntOperand)), nil

	case cilLdnull:
		ctx.push(stackRef)
		return one(OpLdNull, 0), nil
	case cilLdcI4M1:
		ctx.push(stackI4)
		return one(OpLdcI4, -1), nil
	case cilLdcI40:
		ctx.push(stackI4)
		return one(OpLdcI4, 0), nil
	case cilLdcI40 + 1, cilLdcI40 + 2, cilLdcI40 + 3, cilLdcI40 + 4, cilLdcI40 + 5, cilLdcI40 + 6, cilLdcI40 + 7, cilLdcI48:
		ctx.push(stackI4)
		return one(OpLdcI4, int64(in.Op-cilLdcI40)), nil
	case cilLdcI4S, cilLdcI4:
		ctx.push(stackI4)
		return one(OpLdcI4, in.IntOperand), nil
	case cilLdcI8:
		ctx.push(stackI8)
		return one(OpLdcI8, in.IntOperand), nil
	case cilLdcR4:
		ctx.push(stackR4)
		return one(OpLdcR4, in.IntOperand), nil
	case cilLdcR8:
		ctx.push(stackR8)
		return one(OpLdcR8, in.IntOperand), nil
	case cilLdstr:
		ctx.push(stackRef)
		return []LLInsn{{Op: OpLdStr, IntOperand: addResolved(lm, in.IntOperand)}}, nil

	case cilBr, cilBrS:
		return []LLInsn{{Op: OpBr, Targets: in.Targets}}, nil
	case cilBrfalse, cilBrfalseS:
		ctx.pop()
		return []LLInsn{{Op: OpBrFalseI4, Targets: in.Targets}}, nil
	case cilBrtrue, cilBrtrueS:
		ctx.pop()
		return []LLInsn{{Op: OpBrTrueI4, Targets: in.Targets}}, nil
	case cilBeq, cilBeqS:
		return []LLInsn{{Op: cmpOp(ctx, OpBeqI4, OpBeqI8), Targets: in.Targets}}, nil
	case cilBge, cilBgeS:
		return []LLInsn{{Op: cmpOp(ctx, OpBgeI4, OpBgeI8), Targets: in.Targets}}, nil
	case cilBgeUn, cilBgeUnS:
		return []LLInsn{{Op: cmpOp(ctx, OpBgeI4, OpBgeI8), Targets: in.Targets}}, nil
	case cilBgt, cilBgtS:
		return []LLInsn{{Op: cmpOp(ctx, OpBgtI4, OpBgtI8), Targets: in.Targets}}, nil
	case cilBgtUn, cilBgtUnS:
		return []LLInsn{{Op: cmpOp(ctx, OpBgtI4, OpBgtI8), Targets: in.Targets}}, nil
	case cilBle, cilBleS:
		return []LLInsn{{Op: cmpOp(ctx, OpBleI4, OpBleI8), Targets: in.Targets}}, nil
	case cilBleUn, cilBleUnS:
		return []LLInsn{{Op: cmpOp(ctx, OpBleI4, OpBleI8), Targets: in.Targets}}, nil
	case cilBlt, cilBltS:
		return []LLInsn{{Op: cmpOp(ctx, OpBltI4, OpBltI8), Targets: in.Targets}}, nil
	case cilBltUn, cilBltUnS:
		return []LLInsn{{Op: cmpOp(ctx, OpBltI4, OpBltI8), Targets: in.Targets}}, nil
	case cilBneUn, cilBneUnS:
		return []LLInsn{{Op: cmpOp(ctx, OpBneUnI4, OpBneUnI8), Targets: in.Targets}}, nil
	case cilSwitch:
		ctx.pop()
		return []LLInsn{{Op: OpSwitch, Targets: in.Targets}}, nil
	case cilLeave, cilLeaveS:
		ctx.stack = ctx.stack[:0]
		target := in.Targets[0]
		chain := finallyChain(ctx.clauses, in.Offset, target)
		if len(chain) == 1 {
			// no enclosing finally guards this leave; jump straight to target.
			return []LLInsn{{Op: OpLeaveCatchWithoutFinally, Targets: chain}}, nil
		}
		op := OpLeaveTryWithFinally
		if inHandlerBody(ctx.clauses, in.Offset) {
			op = OpLeaveCatchWithFinally
		}
		return []LLInsn{{Op: op, Targets: chain}}, nil

	case cilAdd:
		return binArith(ctx, OpAddI4, OpAddI8, OpAddR4, OpAddR8), nil
	case cilAddOvf:
		return binArith(ctx, OpAddOvfI4, OpAddOvfI8, OpAddOvfI4, OpAddOvfI8), nil
	case cilAddOvfUn:
		return binArith(ctx, OpAddOvfUnI4, OpAddOvfUnI8, OpAddOvfUnI4, OpAddOvfUnI8), nil
	case cilSub:
		return binArith(ctx, OpSubI4, OpSubI8, OpSubR4, OpSubR8), nil
	case cilSubOvf:
		return binArith(ctx, OpSubOvfI4, OpSubOvfI8, OpSubOvfI4, OpSubOvfI8), nil
	case cilSubOvfUn:
		return binArith(ctx, OpSubOvfUnI4, OpSubOvfUnI8, OpSubOvfUnI4, OpSubOvfUnI8), nil
	case cilMul:
		return binArith(ctx, OpMulI4, OpMulI8, OpMulR4, OpMulR8), nil
	case cilMulOvf:
		return binArith(ctx, OpMulOvfI4, OpMulOvfI8, OpMulOvfI4, OpMulOvfI8), nil
	case cilMulOvfUn:
		return binArith(ctx, OpMulOvfUnI4, OpMulOvfUnI8, OpMulOvfUnI4, OpMulOvfUnI8), nil
	case cilDiv:
		return binArith(ctx, OpDivI4, OpDivI8, OpDivR4, OpDivR8), nil
	case cilDivUn:
		return binArith(ctx, OpDivUnI4, OpDivUnI8, OpDivUnI4, OpDivUnI8), nil
	case cilRem:
		return binArith(ctx, OpRemI4, OpRemI8, OpRemI4, OpRemI8), nil
	case cilRemUn:
		return binArith(ctx, OpRemUnI4, OpRemUnI8, OpRemUnI4, OpRemUnI8), nil
	case cilAnd:
		return binArith(ctx, OpAndI4, OpAndI8, OpAndI4, OpAndI8), nil
	case cilOr:
		return binArith(ctx, OpOrI4, OpOrI8, OpOrI4, OpOrI8), nil
	case cilXor:
		return binArith(ctx, OpXorI4, OpXorI8, OpXorI4, OpXorI8), nil
	case cilShl:
		ctx.pop()
		t := ctx.pop()
		ctx.push(t)
		if t == stackI8 {
			return one(OpShlI8, 0), nil
		}
		return one(OpShlI4, 0), nil
	case cilShr:
		ctx.pop()
		t := ctx.pop()
		ctx.push(t)
		if t == stackI8 {
			return one(OpShrI8, 0), nil
		}
		return one(OpShrI4, 0), nil
	case cilShrUn:
		ctx.pop()
		t := ctx.pop()
		ctx.push(t)
		if t == stackI8 {
			return one(OpShrUnI8, 0), nil
		}
		return one(OpShrUnI4, 0), nil
	case cilNeg:
		t := ctx.pop()
		ctx.push(t)
		switch t {
		case stackI8:
			return one(OpNegI8, 0), nil
		case stackR4:
			return one(OpNegR4, 0), nil
		case stackR8:
			return one(OpNegR8, 0), nil
		default:
			return one(OpNegI4, 0), nil
		}
	case cilNot:
		t := ctx.pop()
		ctx.push(t)
		if t == stackI8 {
			return one(OpNotI8, 0), nil
		}
		return one(OpNotI4, 0), nil

	// Conv opcodes are named dest.src; only the i4<->i8/r4/r8 corners are
	// catalogued (see opcodes.go scope note), so a source type this matrix
	// doesn't cover falls back to the nearest cataloged variant rather than
	// adding a new Op for every width.
	case cilConvI1:
		ctx.pop()
		ctx.push(stackI4)
		return one(OpConvI1I4, 0), nil
	case cilConvI4:
		src := ctx.pop()
		ctx.push(stackI4)
		switch src {
		case stackI8:
			return one(OpConvI4I8, 0), nil
		case stackR4:
			return one(OpConvI4R4, 0), nil
		case stackR8:
			return one(OpConvI4R8, 0), nil
		default:
			return nil, nil // already i4: identity
		}
	case cilConvI8:
		src := ctx.pop()
		ctx.push(stackI8)
		if src == stackI8 {
			return nil, nil // identity
		}
		return one(OpConvI8I4, 0), nil
	case cilConvR4:
		ctx.pop()
		ctx.push(stackR4)
		return one(OpConvR4I4, 0), nil
	case cilConvR8:
		ctx.pop()
		ctx.push(stackR8)
		return one(OpConvR8I4, 0), nil

	case cilCeq:
		return cmpPush(ctx, OpCeqI4, OpCeqI8, OpCeqR4, OpCeqR8), nil
	case cilCgt:
		return cmpPush(ctx, OpCgtI4, OpCgtI8, OpCgtI4, OpCgtI4), nil
	case cilCgtUn:
		return cmpPush(ctx, OpCgtUnI4, OpCgtI8, OpCgtUnI4, OpCgtUnI4), nil
	case cilClt:
		return cmpPush(ctx, OpCltI4, OpCltI8, OpCltI4, OpCltI4), nil
	case cilCltUn:
		return cmpPush(ctx, OpCltUnI4, OpCltI8, OpCltUnI4, OpCltUnI4), nil

	case cilLdindI1:
		ctx.pop()
		ctx.push(stackI4)
		return one(OpLdIndI1, 0), nil
	case cilLdindI8:
		ctx.pop()
		ctx.push(stackI8)
		return one(OpLdIndI8, 0), nil
	case cilLdindR8:
		// no ldind.r8 variant cataloged (opcodes.go scope note); the
		// 8-byte indirect load carries the right width regardless of the
		// interpreter's float/int tagging of the loaded slot.
		ctx.pop()
		ctx.push(stackR8)
		return one(OpLdIndI8, 0), nil
	case cilLdindRef:
		ctx.pop()
		ctx.push(stackRef)
		return one(OpLdIndI4, 0), nil
	case cilStindRef:
		ctx.pop()
		ctx.pop()
		return one(OpStIndI4, 0), nil
	case cilStindI4:
		ctx.pop()
		ctx.pop()
		return one(OpStIndI4, 0), nil

	case cilCpobj:
		ctx.pop()
		ctx.pop()
		return []LLInsn{{Op: OpCpObj, IntOperand: addResolved(lm, in.IntOperand)}}, nil
	case cilLdobj:
		ctx.pop()
		ctx.push(stackValueType)
		return []LLInsn{{Op: OpLdObj, IntOperand: addResolved(lm, in.IntOperand)}}, nil
	case cilStobj:
		ctx.pop()
		ctx.pop()
		return []LLInsn{{Op: OpStObj, IntOperand: addResolved(lm, in.IntOperand)}}, nil
	case cilInitobj:
		ctx.pop()
		return []LLInsn{{Op: OpInitObj, IntOperand: addResolved(lm, in.IntOperand)}}, nil
	case cilCastclass:
		ctx.pop()
		ctx.push(stackRef)
		return []LLInsn{{Op: OpCastClass, IntOperand: addResolved(lm, in.IntOperand)}}, nil
	case cilIsinst:
		ctx.pop()
		ctx.push(stackRef)
		return []LLInsn{{Op: OpIsInst, IntOperand: addResolved(lm, in.IntOperand)}}, nil
	case cilBox:
		ctx.pop()
		ctx.push(stackRef)
		return []LLInsn{{Op: OpBox, IntOperand: addResolved(lm, in.IntOperand)}}, nil
	case cilUnbox:
		ctx.pop()
		ctx.push(stackByRef)
		return []LLInsn{{Op: OpUnbox, IntOperand: addResolved(lm, in.IntOperand)}}, nil
	case cilUnboxAny:
		ctx.pop()
		ctx.push(stackValueType)
		return []LLInsn{{Op: OpUnboxAny, IntOperand: addResolved(lm, in.IntOperand)}}, nil
	case cilLdtoken:
		ctx.push(stackValueType)
		return []LLInsn{{Op: OpLdToken, IntOperand: addResolved(lm, in.IntOperand)}}, nil
	case cilSizeof:
		ctx.push(stackI4)
		return []LLInsn{{Op: OpLdcI4, IntOperand: addResolved(lm, in.IntOperand)}}, nil

	case cilNewarr:
		ctx.pop()
		ctx.push(stackRef)
		return []LLInsn{{Op: OpNewArr, IntOperand: addResolved(lm, in.IntOperand)}}, nil
	case cilLdlen:
		ctx.pop()
		ctx.push(stackI4)
		return one(OpLdLen, 0), nil
	case cilLdelema:
		ctx.pop()
		ctx.pop()
		ctx.push(stackByRef)
		return []LLInsn{{Op: OpLdelema, IntOperand: addResolved(lm, in.IntOperand)}}, nil
	case cilLdelem:
		ctx.pop()
		ctx.pop()
		ctx.push(stackValueType)
		return []LLInsn{{Op: OpLdelemAnyVal, IntOperand: addResolved(lm, in.IntOperand)}}, nil
	case cilLdelemI4:
		ctx.pop()
		ctx.pop()
		ctx.push(stackI4)
		return one(OpLdelemI4, 0), nil
	case cilLdelemI8:
		ctx.pop()
		ctx.pop()
		ctx.push(stackI8)
		return one(OpLdelemI8, 0), nil
	case cilLdelemR4:
		ctx.pop()
		ctx.pop()
		ctx.push(stackR4)
		return one(OpLdelemR4, 0), nil
	case cilLdelemR8:
		ctx.pop()
		ctx.pop()
		ctx.push(stackR8)
		return one(OpLdelemR8, 0), nil
	case cilLdelemRef:
		ctx.pop()
		ctx.pop()
		ctx.push(stackRef)
		return one(OpLdelemRef, 0), nil
	case cilStelem:
		ctx.popN(3)
		return []LLInsn{{Op: OpStelemAnyVal, IntOperand: addResolved(lm, in.IntOperand)}}, nil
	case cilStelemI4:
		ctx.popN(3)
		return one(OpStelemI4, 0), nil
	case cilStelemI8:
		ctx.popN(3)
		return one(OpStelemI8, 0), nil
	case cilStelemR4:
		ctx.popN(3)
		return one(OpStelemR4, 0), nil
	case cilStelemR8:
		ctx.popN(3)
		return one(OpStelemR8, 0), nil
	case cilStelemRef:
		ctx.popN(3)
		return one(OpStelemRef, 0), nil

	case cilLdfld:
		ctx.pop()
		ctx.push(stackValueType)
		return []LLInsn{{Op: OpLdfld, IntOperand: addResolved(lm, in.IntOperand)}}, nil
	case cilLdflda:
		ctx.pop()
		ctx.push(stackByRef)
		return []LLInsn{{Op: OpLdflda, IntOperand: addResolved(lm, in.IntOperand)}}, nil
	case cilStfld:
		ctx.pop()
		ctx.pop()
		return []LLInsn{{Op: OpStfld, IntOperand: addResolved(lm, in.IntOperand)}}, nil
	case cilLdsfld:
		ctx.push(stackValueType)
		return []LLInsn{{Op: OpLdsfld, IntOperand: addResolved(lm, in.IntOperand)}}, nil
	case cilLdsflda:
		ctx.push(stackByRef)
		return []LLInsn{{Op: OpLdsflda, IntOperand: addResolved(lm, in.IntOperand)}}, nil
	case cilStsfld:
		ctx.pop()
		return []LLInsn{{Op: OpStsfld, IntOperand: addResolved(lm, in.IntOperand)}}, nil

	case cilCall, cilCallvirt:
		op := OpCallInterp
		if in.Op == cilCallvirt {
			op = OpCallVirtInterp
		}
		return []LLInsn{{Op: op, IntOperand: addResolved(lm, in.IntOperand)}}, nil
	case cilCalli:
		ctx.pop()
		return []LLInsn{{Op: OpCalliInterp, IntOperand: addResolved(lm, in.IntOperand)}}, nil
	case cilNewobj:
		ctx.push(stackRef)
		return []LLInsn{{Op: OpNewObjInterp, IntOperand: addResolved(lm, in.IntOperand)}}, nil
	case cilLdftn:
		ctx.push(stackI4)
		return []LLInsn{{Op: OpLdftn, IntOperand: addResolved(lm, in.IntOperand)}}, nil
	case cilLdvirtftn:
		ctx.pop()
		ctx.push(stackI4)
		return []LLInsn{{Op: OpLdvirtftn, IntOperand: addResolved(lm, in.IntOperand)}}, nil
	case cilJmp:
		return []LLInsn{{Op: OpCallInterp, IntOperand: addResolved(lm, in.IntOperand)}, {Op: OpRetVoid}}, nil

	case cilCpblk:
		ctx.popN(3)
		return one(OpCpBlk, 0), nil
	case cilInitblk:
		ctx.popN(3)
		return one(OpInitBlk, 0), nil
	case cilRefanytype:
		ctx.pop()
		ctx.push(stackI4)
		return one(OpRefAnyType, 0), nil

	default:
		return nil, fmt.Errorf("unrecognized CIL opcode 0x%X at offset %d", in.Op, in.Offset)
	}
}

func ldarg(ctx *lowerCtx, idx int) []LLInsn {
	rt := metadata.ReduceI4
	if idx < len(ctx.argTypes) {
		rt = ctx.argTypes[idx]
	}
	ctx.push(reduceToStack(rt))
	return one(OpLdArgAny, int64(idx))
}

func ldloc(ctx *lowerCtx, idx int) []LLInsn {
	rt := metadata.ReduceI4
	if idx < len(ctx.localTypes) {
		rt = ctx.localTypes[idx]
	}
	ctx.push(reduceToStack(rt))
	return one(OpLdLocAny, int64(idx))
}

func stloc(ctx *lowerCtx, idx int) []LLInsn {
	ctx.pop()
	return one(OpStLocAny, int64(idx))
}

func binArith(ctx *lowerCtx, i4, i8, r4, r8 Op) []LLInsn {
	b := ctx.pop()
	a := ctx.pop()
	t := a
	if b == stackI8 || a == stackI8 {
		t = stackI8
	}
	ctx.push(t)
	switch t {
	case stackI8:
		return one(i8, 0)
	case stackR4:
		return one(r4, 0)
	case stackR8:
		return one(r8, 0)
	default:
		return one(i4, 0)
	}
}

func cmpOp(ctx *lowerCtx, i4, i8 Op) Op {
	a := ctx.pop()
	ctx.pop()
	if a == stackI8 {
		return i8
	}
	return i4
}

func cmpPush(ctx *lowerCtx, i4, i8, r4, r8 Op) []LLInsn {
	b := ctx.pop()
	a := ctx.pop()
	ctx.push(stackI4)
	t := a
	if b == stackI8 || a == stackI8 {
		t = stackI8
	}
	switch t {
	case stackI8:
		return one(i8, 0)
	case stackR4:
		return one(r4, 0)
	case stackR8:
		return one(r8, 0)
	default:
		return one(i4, 0)
	}
}

func one(op Op, operand int64) []LLInsn {
	return []LLInsn{{Op: op, IntOperand: operand}}
}

// addResolved appends a raw token to the method's resolved-data table and
// returns its index; the invoke/interp packages resolve the token to a
// concrete *metadata.Method/*metadata.Class/*metadata.Field once here
// rather than on every dispatch (clrhost §4.3 "resolved data table").
func addResolved(lm *LowMethod, token int64) int64 {
	lm.ResolvedData = append(lm.ResolvedData, metadata.Token{
		Table: int(token>>24) & 0xFF,
		Rid:   uint32(token) & 0x00FFFFFF,
	})
	return int64(len(lm.ResolvedData) - 1)
}
