// Package main is the escolar CLI: an LLM-assisted assistant over a primary
// school student registry. Run without arguments for the interactive chat;
// subcommands cover one-shot queries, certificate generation, PDF
// transformation and registry maintenance.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	// Global flags
	configPath string
	verbose    bool

	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "escolar",
	Short: "Asistente del registro escolar de primaria",
	Long: `escolar administra un registro de alumnos de primaria y genera
constancias (de estudios, de calificaciones y de traslado) a partir de él.

La interfaz principal es un chat en español: escribe lo que necesitas
("busca a Juan Pérez", "cuántos alumnos hay por grado", "genérale una
constancia de estudios") y el asistente lo resuelve contra el registro.

Sin argumentos inicia el chat interactivo.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Missing .env is the normal case, not an error.
		_ = godotenv.Load()

		zcfg := zap.NewProductionConfig()
		if verbose || os.Getenv("ESCOLAR_ENV") == "development" {
			zcfg = zap.NewDevelopmentConfig()
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zcfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runChat()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "school_config.yaml", "ruta del archivo de configuración")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "registro detallado")

	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(generateCmd)
	rootCmd.AddCommand(transformCmd)
	rootCmd.AddCommand(extractCmd)
	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(initCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
