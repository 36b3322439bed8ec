package config

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"arcwelder/buffer"
)

func TestLoadYAMLAppliesDefaults(t *testing.T) {
	data := []byte("resolution_mm: 0.1\n")
	s, err := Load(data, "settings.yaml")
	require.NoError(t, err)
	assert.InDelta(t, 0.1, s.ResolutionMM, 1e-9)
	assert.Equal(t, Default().MaxArcSegments, s.MaxArcSegments)
	assert.Equal(t, Default().MinArcSegments, s.MinArcSegments)
}

func TestLoadJSON(t *testing.T) {
	data := []byte(`{"resolution_mm": 0.2, "allow_3d_arcs": true}`)
	s, err := Load(data, "settings.json")
	require.NoError(t, err)
	assert.InDelta(t, 0.2, s.ResolutionMM, 1e-9)
	assert.True(t, s.Allow3DArcs)
}

func TestValidateRejectsBadResolution(t *testing.T) {
	s := Default()
	s.ResolutionMM = 0
	err := s.Validate()
	assert.True(t, errors.Is(err, ErrConfig))
}

func TestValidateRejectsBadPathTolerance(t *testing.T) {
	s := Default()
	s.PathTolerancePercent = 1.5
	assert.Error(t, s.Validate())
}

func TestValidateRejectsMaxLessThanMinSegments(t *testing.T) {
	s := Default()
	s.MinArcSegments = 10
	s.MaxArcSegments = 5
	assert.Error(t, s.Validate())
}

func TestValidateRejectsMaxSegmentsOverHardCap(t *testing.T) {
	s := Default()
	s.MaxArcSegments = buffer.HardMaxSegments + 1
	assert.Error(t, s.Validate())
}

func TestDefaultSettingsAreValid(t *testing.T) {
	assert.NoError(t, Default().Validate())
}
