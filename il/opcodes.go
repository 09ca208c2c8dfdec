// Package il implements the two-pass IL-to-low-level transformer (clrhost
// §4.3): an HL pass that builds a basic-block graph over a typed abstract
// evaluation stack, and an LL pass that rewrites each HL instruction into
// one of a family of flat, type/width/locality-specialized opcodes the
// interpreter can dispatch without re-deriving operand shape at run time.
package il

// Op is a low-level opcode (clrhost §4.3 "LL opcode selection"). The
// catalog here is a representative slice of the full variant family named
// in ll_opcodes.h — one or more entries per category (locals, branches,
// indirect load/store, arithmetic, conversions, comparisons, object
// model, arrays, fields, calls, exception control) — rather than every
// width/alignment/short-immediate specialization. Each category's omitted variants differ from a kept one
// only in operand width or addressing mode, never in semantics.
type Op uint16

const (
	OpIllegal Op = iota
	OpNop
	OpInitLocals

	// locals / args
	OpLdLocI4
	OpLdLocI8
	OpLdLocR4
	OpLdLocR8
	OpLdLocAny
	OpLdLoca
	OpStLocI4
	OpStLocI8
	OpStLocAny
	OpLdArgI4
	OpLdArgAny
	OpStArgAny
	OpLdNull
	OpLdcI4
	OpLdcI8
	OpLdcR4
	OpLdcR8
	OpLdStr

	// branches
	OpBr
	OpBrTrueI4
	OpBrFalseI4
	OpBeqI4
	OpBgeI4
	OpBgtI4
	OpBleI4
	OpBltI4
	OpBneUnI4
	OpBeqI8
	OpBgeI8
	OpBgtI8
	OpBleI8
	OpBltI8
	OpBneUnI8
	OpSwitch

	// indirect load/store
	OpLdIndI1
	OpLdIndU1
	OpLdIndI2
	OpLdIndU2
	OpLdIndI4
	OpLdIndI8
	OpStIndI1
	OpStIndI2
	OpStIndI4
	OpStIndI8

	// arithmetic
	OpAddI4
	OpAddI8
	OpAddR4
	OpAddR8
	OpSubI4
	OpSubI8
	OpSubR4
	OpSubR8
	OpMulI4
	OpMulI8
	OpMulR4
	OpMulR8
	OpDivI4
	OpDivI8
	OpDivR4
	OpDivR8
	OpDivUnI4
	OpDivUnI8
	OpRemI4
	OpRemI8
	OpRemUnI4
	OpRemUnI8
	OpAndI4
	OpAndI8
	OpOrI4
	OpOrI8
	OpXorI4
	OpXorI8
	OpShlI4
	OpShlI8
	OpShrI4
	OpShrI8
	OpShrUnI4
	OpShrUnI8
	OpNegI4
	OpNegI8
	OpNegR4
	OpNegR8
	OpNotI4
	OpNotI8
	OpAddOvfI4
	OpAddOvfI8
	OpAddOvfUnI4
	OpAddOvfUnI8
	OpSubOvfI4
	OpSubOvfI8
	OpSubOvfUnI4
	OpSubOvfUnI8
	OpMulOvfI4
	OpMulOvfI8
	OpMulOvfUnI4
	OpMulOvfUnI8

	// conversions
	OpConvI1I4
	OpConvU1I4
	OpConvI2I4
	OpConvU2I4
	OpConvI4I8
	OpConvI8I4
	OpConvR4I4
	OpConvR8I4
	OpConvI4R4
	OpConvI4R8
	OpConvOvfI4I8
	OpConvOvfU4I8

	// comparisons
	OpCeqI4
	OpCeqI8
	OpCeqR4
	OpCeqR8
	OpCgtI4
	OpCgtI8
	OpCgtUnI4
	OpCltI4
	OpCltI8
	OpCltUnI4

	// value-type / object model
	OpInitObj
	OpCpObj
	OpLdObj
	OpStObj
	OpCastClass
	OpIsInst
	OpBox
	OpUnbox
	OpUnboxAny
	OpDup
	OpPop
	OpLdToken
	OpCkfiniteR4
	OpCkfiniteR8
	OpLocAlloc
	OpInitBlk
	OpCpBlk
	OpMkRefAny
	OpRefAnyVal
	OpRefAnyType

	// arrays
	OpNewArr
	OpLdLen
	OpLdelema
	OpLdelemI1
	OpLdelemU1
	OpLdelemI2
	OpLdelemU2
	OpLdelemI4
	OpLdelemI8
	OpLdelemR4
	OpLdelemR8
	OpLdelemRef
	OpLdelemAnyVal
	OpStelemI1
	OpStelemI2
	OpStelemI4
	OpStelemI8
	OpStelemR4
	OpStelemR8
	OpStelemRef
	OpStelemAnyVal

	// fields
	OpLdfld
	OpLdflda
	OpStfld
	OpLdvfld
	OpLdvflda
	OpLdsfld
	OpLdsflda
	OpLdsfldRvaData
	OpStsfld

	// returns
	OpRetVoid
	OpRetI4
	OpRetI8
	OpRetAny

	// calls / object creation
	OpCallInterp
	OpCallVirtInterp
	OpCallInternalCall
	OpCallIntrinsic
	OpCallPInvoke
	OpCallRuntimeImplemented
	OpCalliInterp
	OpNewObjInterp
	OpNewValueTypeInterp
	OpNewObjInternalCall
	OpNewObjIntrinsic
	OpLdftn
	OpLdvirtftn

	// exception control
	OpThrow
	OpRethrow
	OpLeaveTryWithFinally
	OpLeaveCatchWithFinally
	OpLeaveCatchWithoutFinally
	OpEndFilter
	OpEndFinally
	OpEndFault

	opCount
)

var opNames = [opCount]string{
	OpIllegal: "illegal", OpNop: "nop", OpInitLocals: "init.locals",
	OpLdLocI4: "ldloc.i4", OpLdLocI8: "ldloc.i8", OpLdLocR4: "ldloc.r4", OpLdLocR8: "ldloc.r8",
	OpLdLocAny: "ldloc.any", OpLdLoca: "ldloca",
	OpStLocI4: "stloc.i4", OpStLocI8: "stloc.i8", OpStLocAny: "stloc.any",
	OpLdArgI4: "ldarg.i4", OpLdArgAny: "ldarg.any", OpStArgAny: "starg.any",
	OpLdNull: "ldnull", OpLdcI4: "ldc.i4", OpLdcI8: "ldc.i8", OpLdcR4: "ldc.r4", OpLdcR8: "ldc.r8",
	OpLdStr: "ldstr",
	OpBr: "br", OpBrTrueI4: "brtrue.i4", OpBrFalseI4: "brfalse.i4",
	OpBeqI4: "beq.i4", OpBgeI4: "bge.i4", OpBgtI4: "bgt.i4", OpBleI4: "ble.i4", OpBltI4: "blt.i4", OpBneUnI4: "bne.un.i4",
	OpBeqI8: "beq.i8", OpBgeI8: "bge.i8", OpBgtI8: "bgt.i8", OpBleI8: "ble.i8", OpBltI8: "blt.i8", OpBneUnI8: "bne.un.i8",
	OpSwitch: "switch",
	OpLdIndI1: "ldind.i1", OpLdIndU1: "ldind.u1", OpLdIndI2: "ldind.i2", OpLdIndU2: "ldind.u2",
	OpLdIndI4: "ldind.i4", OpLdIndI8: "ldind.i8",
	OpStIndI1: "stind.i1", OpStIndI2: "stind.i2", OpStIndI4: "stind.i4", OpStIndI8: "stind.i8",
	OpAddI4: "add.i4", OpAddI8: "add.i8", OpAddR4: "add.r4", OpAddR8: "add.r8",
	OpSubI4: "sub.i4", OpSubI8: "sub.i8", OpSubR4: "sub.r4", OpSubR8: "sub.r8",
	OpMulI4: "mul.i4", OpMulI8: "mul.i8", OpMulR4: "mul.r4", OpMulR8: "mul.r8",
	OpDivI4: "div.i4", OpDivI8: "div.i8", OpDivR4: "div.r4", OpDivR8: "div.r8",
	OpDivUnI4: "div.un.i4", OpDivUnI8: "div.un.i8",
	OpRemI4: "rem.i4", OpRemI8: "rem.i8", OpRemUnI4: "rem.un.i4", OpRemUnI8: "rem.un.i8",
	OpAndI4: "and.i4", OpAndI8: "and.i8", OpOrI4: "or.i4", OpOrI8: "or.i8", OpXorI4: "xor.i4", OpXorI8: "xor.i8",
	OpShlI4: "shl.i4", OpShlI8: "shl.i8", OpShrI4: "shr.i4", OpShrI8: "shr.i8",
	OpShrUnI4: "shr.un.i4", OpShrUnI8: "shr.un.i8",
	OpNegI4: "neg.i4", OpNegI8: "neg.i8", OpNegR4: "neg.r4", OpNegR8: "neg.r8",
	OpNotI4: "not.i4", OpNotI8: "not.i8",
	OpAddOvfI4: "add.ovf.i4", OpAddOvfI8: "add.ovf.i8", OpAddOvfUnI4: "add.ovf.un.i4", OpAddOvfUnI8: "add.ovf.un.i8",
	OpSubOvfI4: "sub.ovf.i4", OpSubOvfI8: "sub.ovf.i8", OpSubOvfUnI4: "sub.ovf.un.i4", OpSubOvfUnI8: "sub.ovf.un.i8",
	OpMulOvfI4: "mul.ovf.i4", OpMulOvfI8: "mul.ovf.i8", OpMulOvfUnI4: "mul.ovf.un.i4", OpMulOvfUnI8: "mul.ovf.un.i8",
	OpConvI1I4: "conv.i1.i4", OpConvU1I4: "conv.u1.i4", OpConvI2I4: "conv.i2.i4", OpConvU2I4: "conv.u2.i4",
	OpConvI4I8: "conv.i4.i8", OpConvI8I4: "conv.i8.i4", OpConvR4I4: "conv.r4.i4", OpConvR8I4: "conv.r8.i4",
	OpConvI4R4: "conv.i4.r4", OpConvI4R8: "conv.i4.r8",
	OpConvOvfI4I8: "conv.ovf.i4.i8", OpConvOvfU4I8: "conv.ovf.u4.i8",
	OpCeqI4: "ceq.i4", OpCeqI8: "ceq.i8", OpCeqR4: "ceq.r4", OpCeqR8: "ceq.r8",
	OpCgtI4: "cgt.i4", OpCgtI8: "cgt.i8", OpCgtUnI4: "cgt.un.i4",
	OpCltI4: "clt.i4", OpCltI8: "clt.i8", OpCltUnI4: "clt.un.i4",
	OpInitObj: "initobj", OpCpObj: "cpobj", OpLdObj: "ldobj", OpStObj: "stobj",
	OpCastClass: "castclass", OpIsInst: "isinst", OpBox: "box", OpUnbox: "unbox", OpUnboxAny: "unbox.any",
	OpDup: "dup", OpPop: "pop", OpLdToken: "ldtoken",
	OpCkfiniteR4: "ckfinite.r4", OpCkfiniteR8: "ckfinite.r8",
	OpLocAlloc: "localloc", OpInitBlk: "initblk", OpCpBlk: "cpblk",
	OpMkRefAny: "mkrefany", OpRefAnyVal: "refanyval", OpRefAnyType: "refanytype",
	OpNewArr: "newarr", OpLdLen: "ldlen", OpLdelema: "ldelema",
	OpLdelemI1: "ldelem.i1", OpLdelemU1: "ldelem.u1", OpLdelemI2: "ldelem.i2", OpLdelemU2: "ldelem.u2",
	OpLdelemI4: "ldelem.i4", OpLdelemI8: "ldelem.i8", OpLdelemR4: "ldelem.r4", OpLdelemR8: "ldelem.r8",
	OpLdelemRef: "ldelem.ref", OpLdelemAnyVal: "ldelem.any",
	OpStelemI1: "stelem.i1", OpStelemI2: "stelem.i2", OpStelemI4: "stelem.i4", OpStelemI8: "stelem.i8",
	OpStelemR4: "stelem.r4", OpStelemR8: "stelem.r8", OpStelemRef: "stelem.ref", OpStelemAnyVal: "stelem.any",
	OpLdfld: "ldfld", OpLdflda: "ldflda", OpStfld: "stfld",
	OpLdvfld: "ldvfld", OpLdvflda: "ldvflda",
	OpLdsfld: "ldsfld", OpLdsflda: "ldsflda", OpLdsfldRvaData: "ldsfld.rva", OpStsfld: "stsfld",
	OpRetVoid: "ret.void", OpRetI4: "ret.i4", OpRetI8: "ret.i8", OpRetAny: "ret.any",
	OpCallInterp: "call.interp", OpCallVirtInterp: "callvirt.interp",
	OpCallInternalCall: "call.internalcall", OpCallIntrinsic: "call.intrinsic",
	OpCallPInvoke: "call.pinvoke", OpCallRuntimeImplemented: "call.runtimeimpl",
	OpCalliInterp: "calli.interp",
	OpNewObjInterp: "newobj.interp", OpNewValueTypeInterp: "newvaluetype.interp",
	OpNewObjInternalCall: "newobj.internalcall", OpNewObjIntrinsic: "newobj.intrinsic",
	OpLdftn: "ldftn", OpLdvirtftn: "ldvirtftn",
	OpThrow: "throw", OpRethrow: "rethrow",
	OpLeaveTryWithFinally: "leave.try.finally", OpLeaveCatchWithFinally: "leave.catch.finally",
	OpLeaveCatchWithoutFinally: "leave.catch", OpEndFilter: "endfilter", OpEndFinally: "endfinally", OpEndFault: "endfault",
}

func (o Op) String() string {
	if int(o) < len(opNames) && opNames[o] != "" {
		return opNames[o]
	}
	return "op(?)"
}

// IsBranch reports whether o carries a branch target operand.
func (o Op) IsBranch() bool {
	switch o {
	case OpBr, OpBrTrueI4, OpBrFalseI4, OpBeqI4, OpBgeI4, OpBgtI4, OpBleI4, OpBltI4, OpBneUnI4,
		OpBeqI8, OpBgeI8, OpBgtI8, OpBleI8, OpBltI8, OpBneUnI8, OpSwitch:
		return true
	}
	return false
}

// IsCall reports whether o is one of the call/calli/newobj family the
// invoke package's invoker-type decision drives.
func (o Op) IsCall() bool {
	switch o {
	case OpCallInterp, OpCallVirtInterp, OpCallInternalCall, OpCallIntrinsic, OpCallPInvoke,
		OpCallRuntimeImplemented, OpCalliInterp, OpNewObjInterp, OpNewValueTypeInterp,
		OpNewObjInternalCall, OpNewObjIntrinsic:
		return true
	}
	return false
}

// IsTerminator reports whether o ends a basic block (clrhost §4.3 "leader
// detection").
func (o Op) IsTerminator() bool {
	switch o {
	case OpRetVoid, OpRetI4, OpRetI8, OpRetAny, OpThrow, OpRethrow,
		OpLeaveTryWithFinally, OpLeaveCatchWithFinally, OpLeaveCatchWithoutFinally,
		OpEndFinally, OpEndFault, OpEndFilter:
		return true
	}
	return o.IsBranch()
}
