package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	_ "github.com/clrhost/clrhost/invoke" // wires metadata.PrepareInvoker
	"github.com/clrhost/clrhost/metadata"
)

var runCmd = &cobra.Command{
	Use:   "run <file> <Type::Method> [args...]",
	Short: "resolve and interpret one static method",
	Long: "run loads file's metadata, resolves Type::Method (namespace-qualified,\n" +
		"e.g. MyApp.Program::Main), and interprets it with whatever integer\n" +
		"arguments follow, passing each as a 64-bit slot per the uniform\n" +
		"invoker ABI. Only static methods with no object/array/string\n" +
		"parameters are reachable this way; anything else needs a managed\n" +
		"entry point that marshals its own arguments.",
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		helper := newLogger()
		img, err := openImage(args[0], helper, newLoggerBackend())
		if err != nil {
			return err
		}
		defer img.Close()

		if !img.HasCLR {
			return fmt.Errorf("%s: no CLR header, not a managed assembly", args[0])
		}

		mod, err := metadata.NewModule(args[0], img, metadata.NewInternPool(), helper)
		if err != nil {
			return err
		}

		typeName, methodName, err := splitMethodRef(args[1])
		if err != nil {
			return err
		}
		method, err := mod.FindMethod(typeName, methodName)
		if err != nil {
			return err
		}
		if !method.IsStatic() {
			return fmt.Errorf("%s::%s is not static; this host only invokes static entry points", typeName, methodName)
		}

		callArgs, err := parseArgs(args[2:])
		if err != nil {
			return err
		}

		ret := make([]uint64, 1)
		if err := invokeViaShim(method, callArgs, ret); err != nil {
			return err
		}
		if method.ReturnSig != nil && method.ReturnSig.Reduce() != metadata.ReduceVoid {
			fmt.Printf("%d (0x%x)\n", ret[0], ret[0])
		}
		return nil
	},
}

// invokeViaShim classifies method through the invocation shim on first
// use (the blank import of the invoke package wires metadata.
// PrepareInvoker as a side effect of this binary linking it in) and
// then runs its installed invoker.
func invokeViaShim(method *metadata.Method, args []uint64, ret []uint64) error {
	if method.InvokeFn == nil {
		if metadata.PrepareInvoker == nil {
			return fmt.Errorf("invocation shim not wired in (invoke package not linked)")
		}
		metadata.PrepareInvoker(method)
	}
	if method.InvokeFn == nil {
		return fmt.Errorf("%s::%s: no invoker installed", method.Parent.Name, method.Name)
	}
	return method.InvokeFn(method, args, ret)
}

func splitMethodRef(ref string) (typeName, methodName string, err error) {
	idx := strings.LastIndex(ref, "::")
	if idx < 0 {
		return "", "", fmt.Errorf("%q: expected Type::Method", ref)
	}
	return ref[:idx], ref[idx+2:], nil
}

func parseArgs(raw []string) ([]uint64, error) {
	out := make([]uint64, len(raw))
	for i, s := range raw {
		n, err := strconv.ParseInt(s, 0, 64)
		if err != nil {
			return nil, fmt.Errorf("argument %d (%q): %v", i, s, err)
		}
		out[i] = uint64(n)
	}
	return out, nil
}
