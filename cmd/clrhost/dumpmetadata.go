package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var dumpMetadataCmd = &cobra.Command{
	Use:   "dump-metadata <file>",
	Short: "print every TypeDef, its fields, and its methods",
	Args:  cobra.ExactArgs(1),
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

		typeDefs, err := img.TypeDefRows()
		if err != nil {
			return err
		}
		fieldDefs, err := img.FieldRows()
		if err != nil {
			return err
		}
		methodDefs, err := img.MethodDefRows()
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		defer w.Flush()

		for i, td := range typeDefs {
			name, err := img.GetMetadataString(td.TypeName)
			if err != nil {
				return err
			}
			ns, err := img.GetMetadataString(td.TypeNamespace)
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "TypeDef[%d]\t%s.%s\tflags=0x%x\n", i+1, ns, name, td.Flags)

			fieldEnd := len(fieldDefs)
			if i+1 < len(typeDefs) {
				fieldEnd = int(typeDefs[i+1].FieldList) - 1
			}
			for fi := int(td.FieldList) - 1; fi >= 0 && fi < fieldEnd && fi < len(fieldDefs); fi++ {
				fname, err := img.GetMetadataString(fieldDefs[fi].Name)
				if err != nil {
					return err
				}
				fmt.Fprintf(w, "\tfield\t%s\n", fname)
			}

			methodEnd := len(methodDefs)
			if i+1 < len(typeDefs) {
				methodEnd = int(typeDefs[i+1].MethodList) - 1
			}
			for mi := int(td.MethodList) - 1; mi >= 0 && mi < methodEnd && mi < len(methodDefs); mi++ {
				mname, err := img.GetMetadataString(methodDefs[mi].Name)
				if err != nil {
					return err
				}
				fmt.Fprintf(w, "\tmethod\t%s\trva=0x%x\n", mname, methodDefs[mi].RVA)
			}
		}
		return nil
	},
}
