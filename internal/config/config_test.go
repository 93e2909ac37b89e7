package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func completeConfig() *Config {
	cfg := DefaultConfig()
	cfg.SchoolInfo = SchoolInfo{
		Name:     "ESCUELA PRIMARIA BENITO JUÁREZ",
		CCT:      "10DPR0123X",
		Director: "MARÍA LÓPEZ HERNÁNDEZ",
	}
	return cfg
}

func TestLoadMissingFileReturnsIncomplete(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "school_config.yaml"))
	require.ErrorIs(t, err, ErrIncomplete)
	require.NotNil(t, cfg)
	assert.True(t, cfg.Features.UseFallbackSubjects)
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "school_config.yaml")
	cfg := completeConfig()
	cfg.AcademicInfo.SubjectsByGrade = map[int][]string{1: {"ESPAÑOL", "MATEMÁTICAS"}}
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg.SchoolInfo, loaded.SchoolInfo)
	assert.Equal(t, []string{"ESPAÑOL", "MATEMÁTICAS"}, loaded.AcademicInfo.SubjectsByGrade[1])
}

func TestValidateIncomplete(t *testing.T) {
	cfg := DefaultConfig()
	err := cfg.Validate()
	require.ErrorIs(t, err, ErrIncomplete)
}

func TestValidateRejectsBadSchemaVersion(t *testing.T) {
	cfg := completeConfig()
	cfg.SystemInfo.SchemaVersion = SchemaVersion + 1
	require.Error(t, cfg.Validate())
}

func TestValidateRejectsBadTimeout(t *testing.T) {
	cfg := completeConfig()
	cfg.LLM.Timeout = "pronto"
	require.Error(t, cfg.Validate())
}

func TestLLMTimeoutDefault(t *testing.T) {
	cfg := completeConfig()
	cfg.LLM.Timeout = ""
	assert.Equal(t, 30*time.Second, cfg.LLMTimeout())
	cfg.LLM.Timeout = "45s"
	assert.Equal(t, 45*time.Second, cfg.LLMTimeout())
}

func TestSubjectsForGrade(t *testing.T) {
	cfg := completeConfig()
	lower := cfg.SubjectsForGrade(2)
	upper := cfg.SubjectsForGrade(5)
	assert.NotEmpty(t, lower)
	assert.Contains(t, upper, "HISTORIA")
	assert.NotContains(t, lower, "HISTORIA")

	cfg.AcademicInfo.SubjectsByGrade = map[int][]string{5: {"TALLER"}}
	assert.Equal(t, []string{"TALLER"}, cfg.SubjectsForGrade(5))
}

func TestDefaultSchoolYear(t *testing.T) {
	assert.Equal(t, "2025-2026", defaultSchoolYear(time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, "2024-2025", defaultSchoolYear(time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)))
}

func TestLoadRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "school_config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(":\n\t-"), 0644))
	_, err := Load(path)
	require.Error(t, err)
}
