package interp

import (
	"github.com/clrhost/clrhost/il"
	"github.com/clrhost/clrhost/metadata"
	"github.com/clrhost/clrhost/rterr"
)

func fieldReduce(fld *metadata.Field) metadata.ReduceType {
	if fld.Signature != nil {
		return fld.Signature.Reduce()
	}
	return metadata.ReduceI4
}

func (f *frame) ldfld(in il.LLInsn) (int, error) {
	fld, err := f.resolveField(in.IntOperand)
	if err != nil {
		return 0, err
	}
	o, err := f.popObj()
	if err != nil {
		return 0, err
	}
	if o == nil {
		return 0, rterr.New(rterr.NullReference, "ldfld %s on null reference", fld.Name)
	}
	if int(fld.Offset) >= len(o.Data) {
		return 0, rterr.New(rterr.ExecutionEngine, "ldfld %s: offset %d beyond object of size %d", fld.Name, fld.Offset, len(o.Data))
	}
	return f.ip + 1, f.push(loadReduce(o.Data, fld.Offset, fieldReduce(fld)))
}

func (f *frame) stfld(in il.LLInsn) (int, error) {
	fld, err := f.resolveField(in.IntOperand)
	if err != nil {
		return 0, err
	}
	v, err := f.pop()
	if err != nil {
		return 0, err
	}
	o, err := f.popObj()
	if err != nil {
		return 0, err
	}
	if o == nil {
		return 0, rterr.New(rterr.NullReference, "stfld %s on null reference", fld.Name)
	}
	if int(fld.Offset) >= len(o.Data) {
		return 0, rterr.New(rterr.ExecutionEngine, "stfld %s: offset %d beyond object of size %d", fld.Name, fld.Offset, len(o.Data))
	}
	storeReduce(o.Data, fld.Offset, fieldReduce(fld), v)
	return f.ip + 1, nil
}

// ldsfld/stsfld must run the declaring class's static constructor before
// first touching its static storage (clrhost §5 "Class initialization":
// BeforeFieldInit relaxes the exact trigger point, but running it lazily
// on first static-field access is always a conforming choice).
func (f *frame) ldsfld(in il.LLInsn) (int, error) {
	fld, err := f.resolveField(in.IntOperand)
	if err != nil {
		return 0, err
	}
	if err := f.ensureClassInit(fld.Parent); err != nil {
		return 0, err
	}
	return f.ip + 1, f.push(loadReduce(fld.Parent.StaticFieldsData, fld.Offset, fieldReduce(fld)))
}

func (f *frame) stsfld(in il.LLInsn) (int, error) {
	fld, err := f.resolveField(in.IntOperand)
	if err != nil {
		return 0, err
	}
	v, err := f.pop()
	if err != nil {
		return 0, err
	}
	if err := f.ensureClassInit(fld.Parent); err != nil {
		return 0, err
	}
	storeReduce(fld.Parent.StaticFieldsData, fld.Offset, fieldReduce(fld), v)
	return f.ip + 1, nil
}

func (f *frame) ensureClassInit(c *metadata.Class) error {
	if err := c.EnsureFields(phaseFnFor(c, metadata.InitField)); err != nil {
		return err
	}
	return c.RunStaticConstructor(func() error {
		return f.runCctor(c)
	})
}

// runCctor finds and interprets c's type initializer, if it declares one
// (clrhost §5 "Class initialization": a class with no .cctor satisfies
// the phase trivially).
func (f *frame) runCctor(c *metadata.Class) error {
	if err := c.EnsureMethods(phaseFnFor(c, metadata.InitMethod)); err != nil {
		return err
	}
	for _, m := range c.Methods {
		if m.Name == ".cctor" {
			ret := make([]uint64, 0)
			return f.interp.invokeDepth(m, nil, ret, f.depth+1)
		}
	}
	return nil
}

// phaseFnFor mirrors metadata's own unexported phaseFn helper: the
// resolver is the only thing that knows how to actually compute a phase,
// and EnsureFields/EnsureMethods need a thunk to run it through, not a
// direct call, so idempotency and prerequisite chaining stay intact.
func phaseFnFor(c *metadata.Class, part metadata.ClassInitPart) func() error {
	return func() error { return c.Image.Resolver.RunPhase(c, part) }
}
