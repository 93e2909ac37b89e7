package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Angeliteh/sistema-escolar-sub003/internal/extract"
	"github.com/Angeliteh/sistema-escolar-sub003/internal/store"
	"github.com/Angeliteh/sistema-escolar-sub003/internal/types"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [pdf]",
	Short: "Extrae una constancia PDF e inscribe al alumno en el registro",
	Long: `Lee una constancia PDF existente y registra al alumno con su
inscripción y calificaciones. Si la CURP ya existe en el registro la
inscripción se agrega al alumno existente.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(false)
		if err != nil {
			return err
		}
		defer a.Close()

		ctx := context.Background()
		data, err := extract.New(logger).Extract(ctx, args[0], types.KindGrades)
		if err != nil {
			return err
		}
		for _, w := range data.Warnings {
			fmt.Println("Nota:", w)
		}
		if data.Student.Name == "" {
			return fmt.Errorf("el PDF no contiene el nombre del alumno")
		}

		student := data.Student
		if err := a.store.InsertStudent(ctx, &student); err != nil {
			if !errors.Is(err, store.ErrDuplicateCURP) {
				return err
			}
			rows, ferr := a.store.FindStudents(ctx, store.Filter{CURP: student.CURP})
			if ferr != nil || len(rows) == 0 {
				return err
			}
			student = rows[0].Student
			fmt.Printf("La CURP %s ya está registrada; se agrega la inscripción a %s.\n",
				student.CURP, student.Name)
		}

		enrollment := data.Enrollment
		enrollment.ID = 0
		enrollment.StudentID = student.ID
		if enrollment.SchoolYear == "" {
			enrollment.SchoolYear = a.watcher.Current().AcademicInfo.CurrentYear
		}
		if err := a.store.UpsertEnrollment(ctx, &enrollment); err != nil {
			return err
		}

		fmt.Printf("Alumno %s registrado (%d°%s, ciclo %s).\n",
			student.Name, enrollment.Grade, enrollment.Group, enrollment.SchoolYear)
		return nil
	},
}
