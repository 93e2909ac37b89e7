package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Angeliteh/sistema-escolar-sub003/internal/actions"
	"github.com/Angeliteh/sistema-escolar-sub003/internal/types"
)

var (
	transformKind  string
	transformPhoto string
)

var transformCmd = &cobra.Command{
	Use:   "transform [pdf]",
	Short: "Transforma una constancia PDF existente a otro tipo",
	Long: `Extrae los datos de una constancia PDF y la vuelve a generar como otro
tipo de constancia. El alumno del PDF no se inscribe en el registro.

Ejemplo:
  escolar transform constancia_vieja.pdf --kind traslado`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, err := types.ParseKind(transformKind)
		if err != nil {
			return err
		}

		a, err := openApp(false)
		if err != nil {
			return err
		}
		defer a.Close()

		res, err := a.lib.TransformPDF(context.Background(), actions.TransformRequest{
			SourcePDF: args[0],
			Kind:      kind,
			Photo:     actions.PhotoMode(transformPhoto),
		})
		if err != nil {
			return err
		}

		fmt.Printf("Constancia de %s generada:\n%s\n", kind, res.Artifact.Path)
		for _, w := range res.Warnings {
			fmt.Println("Nota:", w)
		}
		return nil
	},
}

func init() {
	transformCmd.Flags().StringVar(&transformKind, "kind", "", "tipo destino: estudios | calificaciones | traslado")
	transformCmd.Flags().StringVar(&transformPhoto, "photo", "auto", "foto: auto | si | no")
	_ = transformCmd.MarkFlagRequired("kind")
}
