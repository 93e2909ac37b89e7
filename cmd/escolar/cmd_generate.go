package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Angeliteh/sistema-escolar-sub003/internal/actions"
	"github.com/Angeliteh/sistema-escolar-sub003/internal/types"
)

var (
	genStudent string
	genCURP    string
	genKind    string
	genPhoto   string
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Genera una constancia sin pasar por el chat",
	Long: `Genera una constancia para un alumno identificado por nombre o CURP.

Ejemplos:
  escolar generate --student "Juan Pérez" --kind estudios
  escolar generate --curp PEGJ150101HDGRRN01 --kind calificaciones --photo no`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if genStudent == "" && genCURP == "" {
			return fmt.Errorf("se requiere --student o --curp")
		}
		kind, err := types.ParseKind(genKind)
		if err != nil {
			return err
		}

		a, err := openApp(false)
		if err != nil {
			return err
		}
		defer a.Close()

		res, err := a.lib.GenerateCertificate(context.Background(), actions.GenerateRequest{
			Selector: actions.Selector{Name: genStudent, CURP: genCURP},
			Kind:     kind,
			Photo:    actions.PhotoMode(genPhoto),
		})
		if err != nil {
			var amb *actions.AmbiguityError
			if errors.As(err, &amb) {
				fmt.Println("Hay varios alumnos con ese nombre:")
				for i, c := range amb.Candidates {
					fmt.Printf("%d. %s\n", i+1, c.Label())
				}
				return fmt.Errorf("usa --curp para elegir uno")
			}
			return err
		}

		fmt.Printf("Constancia de %s generada para %s:\n%s\n", kind, res.Student.Name, res.Artifact.Path)
		for _, w := range res.Warnings {
			fmt.Println("Nota:", w)
		}
		return nil
	},
}

func init() {
	generateCmd.Flags().StringVar(&genStudent, "student", "", "nombre del alumno")
	generateCmd.Flags().StringVar(&genCURP, "curp", "", "CURP del alumno")
	generateCmd.Flags().StringVar(&genKind, "kind", "estudios", "tipo: estudios | calificaciones | traslado")
	generateCmd.Flags().StringVar(&genPhoto, "photo", "auto", "foto: auto | si | no")
}
