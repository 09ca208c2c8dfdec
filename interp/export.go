package interp

import "github.com/clrhost/clrhost/metadata"

// ObjectFromHandle recovers the *Object a uint64 stack/arg slot holds,
// for invokers outside this package (the invoke package's array
// accessor thunks and internal-call handlers) that receive raw args
// through the uniform InvokeFunc ABI.
func ObjectFromHandle(v uint64) *Object { return uintToObj(v) }

// HandleFromObject is ObjectFromHandle's inverse.
func HandleFromObject(o *Object) uint64 { return objToUint(o) }

// NewObject allocates a zeroed instance of c, exported for invoke's
// array-constructor thunk.
func NewObject(c *metadata.Class) *Object { return newObject(c) }

// NewArrayObject allocates an SZArray/Array instance, exported for
// invoke's array-constructor thunk.
func NewArrayObject(arrClass, elemClass *metadata.Class, n int) *Object {
	return newArrayObject(arrClass, elemClass, n)
}
