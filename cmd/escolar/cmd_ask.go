package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Angeliteh/sistema-escolar-sub003/internal/engine"
)

var askPDF string

var askCmd = &cobra.Command{
	Use:   "ask [mensaje]",
	Short: "Procesa un solo mensaje y termina",
	Long: `Ejecuta un turno del asistente sin entrar al chat interactivo.

Ejemplos:
  escolar ask "cuántos alumnos hay por grado"
  escolar ask "constancia de estudios para Juan Pérez"
  escolar ask --pdf constancia.pdf "conviértela a traslado"`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(true)
		if err != nil {
			return err
		}
		defer a.Close()

		resp := a.engine.ProcessTurn(context.Background(), engine.TurnInput{
			Message:   strings.Join(args, " "),
			LoadedPDF: askPDF,
		})
		fmt.Println(resp.Text)
		if !resp.Success {
			return fmt.Errorf("la petición no se pudo completar")
		}
		return nil
	},
}

func init() {
	askCmd.Flags().StringVar(&askPDF, "pdf", "", "PDF cargado para transformaciones")
}
