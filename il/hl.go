package il

import "github.com/clrhost/clrhost/metadata"

// stackType is the abstract verification-stack type an HL evaluation slot
// carries (clrhost §4.3 "typed abstract eval stack"): coarser than a full
// TypeSignature, just enough to pick an LL opcode variant.
type stackType uint8

const (
	stackI4 stackType = iota
	stackI8
	stackR4
	stackR8
	stackRef
	stackByRef
	stackValueType
)

func reduceToStackType(r metadata.ReduceType) stackType {
	switch r {
	case metadata.ReduceI1, metadata.ReduceU1, metadata.ReduceI2, metadata.ReduceU2, metadata.ReduceI4:
		return stackI4
	case metadata.ReduceI8:
		return stackI8
	case metadata.ReduceR4:
		return stackR4
	case metadata.ReduceR8:
		return stackR8
	case metadata.ReduceRef:
		return stackRef
	case metadata.ReduceI:
		return stackI4
	default:
		return stackValueType
	}
}

// basicBlock is a maximal straight-line run of CIL instructions: it has
// exactly one entry (its Start offset is a jump target or immediately
// follows a terminator) and ends at a terminator or falls through to the
// next leader (clrhost §4.3 "leader detection").
type basicBlock struct {
	Start  int
	Insns  []cilInsn
	StackIn []stackType // abstract stack shape on entry, once computed
}

// buildBasicBlocks partitions a decoded instruction stream into blocks.
// A leader is: offset 0, any instruction targeted by a branch/switch/
// exception clause, and any instruction immediately following a
// terminator.
func buildBasicBlocks(insns []cilInsn, clauses []exceptionClauseIL) []*basicBlock {
	isLeader := map[int]bool{0: true}
	for _, in := range insns {
		for _, t := range in.Targets {
			isLeader[t] = true
		}
		if in.Op.isTerminatorCIL() {
			next := in.Offset + in.Len
			isLeader[next] = true
		}
	}
	for _, c := range clauses {
		isLeader[int(c.TryOffset)] = true
		isLeader[int(c.HandlerOffset)] = true
		if c.FilterOffset != 0 {
			isLeader[int(c.FilterOffset)] = true
		}
	}

	var blocks []*basicBlock
	var cur *basicBlock
	for _, in := range insns {
		if isLeader[in.Offset] || cur == nil {
			cur = &basicBlock{Start: in.Offset}
			blocks = append(blocks, cur)
		}
		cur.Insns = append(cur.Insns, in)
	}
	return blocks
}

// exceptionClauseIL mirrors image.ExceptionClause but keeps only the
// fields the HL pass needs for leader detection and the clause-offset
// translation step (clrhost §4.3 "exception clause translation").
type exceptionClauseIL struct {
	Flags         uint32
	TryOffset     uint32
	TryLength     uint32
	HandlerOffset uint32
	HandlerLength uint32
	ClassToken    uint32
	FilterOffset  uint32
}

func (o cilOp) isTerminatorCIL() bool {
	switch o {
	case cilRet, cilThrow, cilRethrow, cilBr, cilLeave, cilLeaveS, cilEndfinally, cilEndfilter,
		cilBrfalse, cilBrtrue, cilBeq, cilBge, cilBgt, cilBle, cilBlt, cilBneUn, cilBgeUn, cilBgtUn,
		cilBleUn, cilBltUn, cilBrS, cilBrfalseS, cilBrtrueS, cilBeqS, cilBgeS, cilBgtS, cilBleS,
		cilBltS, cilBneUnS, cilBgeUnS, cilBgtUnS, cilBleUnS, cilBltUnS, cilSwitch:
		return true
	}
	return false
}
