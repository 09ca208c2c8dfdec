package metadata

// MethodAttribute mirrors ECMA-335 MethodAttributes (II.23.1.10).
type MethodAttribute uint16

const (
	MethodPrivate      MethodAttribute = 0x0001
	MethodPublic       MethodAttribute = 0x0006
	MethodMemberAccessMask MethodAttribute = 0x0007
	MethodStatic       MethodAttribute = 0x0010
	MethodFinal        MethodAttribute = 0x0020
	MethodVirtual      MethodAttribute = 0x0040
	MethodHideBySig    MethodAttribute = 0x0080
	MethodNewSlot      MethodAttribute = 0x0100
	MethodAbstract     MethodAttribute = 0x0400
	MethodSpecialName  MethodAttribute = 0x0800
	MethodPInvokeImpl  MethodAttribute = 0x2000
	MethodRTSpecialName MethodAttribute = 0x1000
)

// MethodImplAttribute mirrors ECMA-335 MethodImplAttributes (II.23.1.11);
// CodeTypeMask selects IL/Native/OPTIL/Runtime (clrhost §4.5 decision
// table "code_type").
type MethodImplAttribute uint16

const (
	CodeTypeIL               MethodImplAttribute = 0x0000
	CodeTypeNative           MethodImplAttribute = 0x0001
	CodeTypeOPTIL            MethodImplAttribute = 0x0002
	CodeTypeRuntime          MethodImplAttribute = 0x0003
	CodeTypeMask             MethodImplAttribute = 0x0003
	ImplManaged              MethodImplAttribute = 0x0000
	ImplUnmanaged            MethodImplAttribute = 0x0004
	ImplInternalCall         MethodImplAttribute = 0x1000
)

// MethodArgDesc describes one argument/return/local slot for interpreter
// marshaling: its reduce type and how many 8-byte StackObject slots it
// occupies (clrhost §3 Method invariant 4, §4.5 argument marshaling).
type MethodArgDesc struct {
	Reduce          ReduceType
	StackSlotSize   uint16
}

// Method is a class member method (clrhost §3 Method). InvokerType,
// InvokeFn, and VirtualInvokeFn are filled in by the invoke package's
// invocation shim; InterpBody is filled in lazily by the il package on
// first call.
type Method struct {
	Parent           *Class
	Name             string
	ReturnSig        *TypeSignature
	Params           []*TypeSignature
	GenericContainer *GenericContainer
	GenericMethod    *GenericMethod
	ArgDescs         []MethodArgDesc
	Token            Token
	RVA              uint32
	Slot             uint16
	Flags            MethodAttribute
	IFlags           MethodImplAttribute

	TotalArgStackSlots uint16
	RetStackSlots      uint16

	InvokerType      InvokerType
	InvokeFn         InvokeFunc
	VirtualInvokeFn  InvokeFunc
	MethodPtr        uintptr

	InterpBody interface{} // *il.LowMethod, set lazily; typed via interface to avoid an import cycle
}

// InvokeFunc is the uniform invoker ABI (clrhost §6 "Invoker ABI"):
// every invoker — interpreter, internal call, intrinsic, P/invoke,
// runtime-implemented — has exactly this shape.
type InvokeFunc func(method *Method, args []uint64, ret []uint64) error

// PrepareInvoker is installed by the invoke package's init (clrhost
// §4.5 "Invocation Shim"): it classifies a Method's invoker type the
// first time a call site reaches it and installs InvokeFn/
// VirtualInvokeFn. A nil value (the invoke package never imported)
// means every call falls back to direct recursive interpretation,
// which is correct for pure-IL programs with no internal calls,
// intrinsics, P/invoke, or delegates.
var PrepareInvoker func(m *Method)

// GenericMethod pairs a base method-def GID with its instantiation.
type GenericMethod struct {
	BaseMethodGID GID
	Context       GenericContext
}

func (m *Method) IsStatic() bool   { return m.Flags&MethodStatic != 0 }
func (m *Method) IsVirtual() bool  { return m.Flags&MethodVirtual != 0 }
func (m *Method) IsAbstract() bool { return m.Flags&MethodAbstract != 0 }
func (m *Method) IsFinal() bool    { return m.Flags&MethodFinal != 0 }
func (m *Method) IsNewSlot() bool  { return m.Flags&MethodNewSlot != 0 }
func (m *Method) IsCtor() bool     { return m.Flags&MethodRTSpecialName != 0 && m.Name == ".ctor" }
func (m *Method) CodeType() MethodImplAttribute { return m.IFlags & CodeTypeMask }
func (m *Method) IsPInvoke() bool  { return m.Flags&MethodPInvokeImpl != 0 }
func (m *Method) IsInternalCall() bool { return m.IFlags&ImplInternalCall != 0 }

// ParamCountIncludingThis returns the declared parameter count plus one
// for 'this' on instance methods (clrhost §3 invariant 4).
func (m *Method) ParamCountIncludingThis() int {
	n := len(m.Params)
	if !m.IsStatic() {
		n++
	}
	return n
}
