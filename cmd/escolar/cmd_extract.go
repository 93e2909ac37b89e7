package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Angeliteh/sistema-escolar-sub003/internal/extract"
	"github.com/Angeliteh/sistema-escolar-sub003/internal/types"
)

var extractCmd = &cobra.Command{
	Use:   "extract [pdf]",
	Short: "Extrae los datos de una constancia PDF y los imprime como JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := extract.New(logger).Extract(context.Background(), args[0], types.KindGrades)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(data); err != nil {
			return err
		}
		for _, w := range data.Warnings {
			fmt.Fprintln(os.Stderr, "Nota:", w)
		}
		return nil
	},
}
