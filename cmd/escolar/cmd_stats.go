package main

import (
	"context"
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Muestra el resumen del registro",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(false)
		if err != nil {
			return err
		}
		defer a.Close()

		stats, err := a.store.Stats(context.Background())
		if err != nil {
			return err
		}
		fmt.Println(formatStats(stats))
		return nil
	},
}

func formatStats(stats map[string]int64) string {
	keys := make([]string, 0, len(stats))
	for k := range stats {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := "Registro escolar:\n"
	for _, k := range keys {
		out += fmt.Sprintf("  %s: %d\n", k, stats[k])
	}
	return out
}
