package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Angeliteh/sistema-escolar-sub003/internal/config"
	"github.com/Angeliteh/sistema-escolar-sub003/internal/store"
	"github.com/Angeliteh/sistema-escolar-sub003/internal/types"
)

var initDemo bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Configura la escuela y crea la base de datos",
	Long: `Flujo de primera ejecución: pregunta los datos de la escuela, escribe
la configuración y crea la base de datos del registro.

Con --demo además inscribe alumnos de prueba.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil && !errors.Is(err, config.ErrIncomplete) {
			return err
		}

		reader := bufio.NewReader(os.Stdin)
		fmt.Println("Configuración de la escuela (Enter conserva el valor entre corchetes):")
		cfg.SchoolInfo.Name = prompt(reader, "Nombre de la escuela", cfg.SchoolInfo.Name)
		cfg.SchoolInfo.CCT = strings.ToUpper(prompt(reader, "C.C.T.", cfg.SchoolInfo.CCT))
		cfg.SchoolInfo.Director = prompt(reader, "Director(a)", cfg.SchoolInfo.Director)
		cfg.LocationInfo.City = prompt(reader, "Ciudad", cfg.LocationInfo.City)
		cfg.LocationInfo.State = prompt(reader, "Estado", cfg.LocationInfo.State)
		cfg.AcademicInfo.CurrentYear = prompt(reader, "Ciclo escolar", cfg.AcademicInfo.CurrentYear)

		if cfg.SystemInfo.InstalledAt == "" {
			cfg.SystemInfo.InstalledAt = time.Now().Format(time.RFC3339)
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		if err := cfg.Save(configPath); err != nil {
			return err
		}
		fmt.Println("Configuración guardada en", configPath)

		st, err := store.Open(cfg.Paths.Database)
		if err != nil {
			return err
		}
		defer st.Close()
		fmt.Println("Base de datos lista en", cfg.Paths.Database)

		if initDemo {
			if err := seedDemo(context.Background(), st, cfg); err != nil {
				return err
			}
			fmt.Println("Alumnos de demostración registrados.")
		}
		return nil
	},
}

func prompt(r *bufio.Reader, label, current string) string {
	if current != "" {
		fmt.Printf("%s [%s]: ", label, current)
	} else {
		fmt.Printf("%s: ", label)
	}
	line, err := r.ReadString('\n')
	if err != nil {
		return current
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return current
	}
	return line
}

// seedDemo registers a small roster for manual testing: mixed grades,
// shifts, one student with grades and one duplicate first name.
func seedDemo(ctx context.Context, st *store.Store, cfg *config.Config) error {
	demo := []struct {
		name, curp string
		grade      int
		group      string
		shift      types.Shift
		grades     []types.SubjectGrade
	}{
		{"JUAN PÉREZ GARCÍA", "PEGJ150101HDGRRN01", 3, "A", types.ShiftMorning, []types.SubjectGrade{
			{Subject: "LENGUA MATERNA. ESPAÑOL", P1: 8, P2: 9, P3: 8, Average: 8.3},
			{Subject: "MATEMÁTICAS", P1: 9, P2: 9, P3: 10, Average: 9.3},
		}},
		{"ANA SOFÍA RUIZ MORALES", "RUMA160315MDGZRN08", 3, "B", types.ShiftMorning, nil},
		{"JUAN PABLO LUNA SOTO", "", 4, "A", types.ShiftAfternoon, nil},
		{"MARÍA FERNANDA ORTIZ", "", 5, "A", types.ShiftMorning, []types.SubjectGrade{
			{Subject: "MATEMÁTICAS", P1: 10, P2: 10, P3: 9, Average: 9.7},
			{Subject: "HISTORIA", P1: 9, P2: 8, P3: 9, Average: 8.7},
		}},
		{"CARLOS MENDOZA RÍOS", "", 6, "C", types.ShiftAfternoon, nil},
	}

	for _, d := range demo {
		student := &types.Student{Name: d.name, CURP: d.curp}
		if err := st.InsertStudent(ctx, student); err != nil {
			if errors.Is(err, store.ErrDuplicateCURP) {
				continue
			}
			return err
		}
		if err := st.UpsertEnrollment(ctx, &types.Enrollment{
			StudentID:  student.ID,
			SchoolYear: cfg.AcademicInfo.CurrentYear,
			Grade:      d.grade,
			Group:      d.group,
			Shift:      d.shift,
			SchoolName: cfg.SchoolInfo.Name,
			SchoolCCT:  cfg.SchoolInfo.CCT,
			Grades:     d.grades,
		}); err != nil {
			return err
		}
	}
	return nil
}

func init() {
	initCmd.Flags().BoolVar(&initDemo, "demo", false, "registrar alumnos de demostración")
}
