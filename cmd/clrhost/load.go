package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/clrhost/clrhost/metadata"
)

var loadCmd = &cobra.Command{
	Use:   "load <file>",
	Short: "open a CLI image and report its metadata module summary",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		helper := newLogger()
		img, err := openImage(args[0], helper, newLoggerBackend())
		if err != nil {
			return err
		}
		defer img.Close()

		if !img.FileInfo.HasCLR {
			return fmt.Errorf("%s: no CLR header, not a managed assembly", args[0])
		}

		mod, err := metadata.NewModule(args[0], img, metadata.NewInternPool(), helper)
		if err != nil {
			return err
		}

		typeDefs, err := img.TypeDefRows()
		if err != nil {
			return err
		}
		methodDefs, err := img.MethodDefRows()
		if err != nil {
			return err
		}
		fieldRows, err := img.FieldRows()
		if err != nil {
			return err
		}

		fmt.Printf("module:      %s (id %d)\n", mod.Name, mod.ID)
		fmt.Printf("types:       %d\n", len(typeDefs))
		fmt.Printf("methods:     %d\n", len(methodDefs))
		fmt.Printf("fields:      %d\n", len(fieldRows))
		if len(img.Anomalies) > 0 {
			fmt.Printf("anomalies:   %d\n", len(img.Anomalies))
		}
		return nil
	},
}
