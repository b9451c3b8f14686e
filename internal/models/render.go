package models

import (
	"math"
)

// Bounds of the render parameters accepted by the remote renderer.
const (
	MinHorizontalAngle = 0
	MaxHorizontalAngle = 288
	MinVerticalAngle   = -180
	MaxVerticalAngle   = 180
	MinLightEnergy     = 0
	MaxLightEnergy     = 160
)

// RenderParameters shape one render request. Angles are degrees and light
// energy is a unitless intensity; they are passed to the renderer unmodified.
type RenderParameters struct {
	HorizontalAngle float64 `json:"horizontalAngle"`
	VerticalAngle   float64 `json:"verticalAngle"`
	LightEnergy     float64 `json:"lightEnergy"`
}

// DefaultRenderParameters is the starting point of a new render session.
func DefaultRenderParameters() RenderParameters {
	return RenderParameters{
		HorizontalAngle: MaxHorizontalAngle / 2,
		VerticalAngle:   0,
		LightEnergy:     MaxLightEnergy / 2,
	}
}

// Clamp returns p with every field forced into its bound. Non-finite values
// cannot be clamped meaningfully and are rejected.
func (p RenderParameters) Clamp() (RenderParameters, error) {
	fields := []struct {
		name     string
		value    *float64
		min, max float64
	}{
		{"horizontalAngle", &p.HorizontalAngle, MinHorizontalAngle, MaxHorizontalAngle},
		{"verticalAngle", &p.VerticalAngle, MinVerticalAngle, MaxVerticalAngle},
		{"lightEnergy", &p.LightEnergy, MinLightEnergy, MaxLightEnergy},
	}
	for _, f := range fields {
		v := *f.value
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return RenderParameters{}, NewValidationError(f.name, "must be a finite number")
		}
		*f.value = math.Min(math.Max(v, f.min), f.max)
	}
	return p, nil
}

type RenderState string

const (
	RenderStateIdle       RenderState = "idle"
	RenderStateRequesting RenderState = "requesting"
	RenderStateReady      RenderState = "ready"
	RenderStateFailed     RenderState = "failed"
)
