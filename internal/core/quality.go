package core

import (
	"log/slog"
	"person-id-backend/internal/config"
	"person-id-backend/internal/faceapi"
	"person-id-backend/internal/observability"
)

type QualityFilter struct {
	bypass bool
}

func NewQualityFilter(cfg config.PipelineConfig) *QualityFilter {
	if cfg.BypassQualityGate {
		slog.Warn("face quality gate is bypassed, faces of any quality will be enrolled and identified", "bypass_quality_gate", true)
	}
	return &QualityFilter{bypass: cfg.BypassQualityGate}
}

// IsAcceptable accepts faces whose quality is high or was not reported.
// Medium and low quality faces are rejected unless the gate is bypassed.
func (f *QualityFilter) IsAcceptable(face faceapi.DetectedFace) bool {
	if f.bypass {
		return true
	}

	switch face.Quality {
	case faceapi.QualityMedium, faceapi.QualityLow:
		slog.Info("face rejected by quality filter", "face_id", face.Id, "quality", face.Quality)
		observability.FacesRejected.WithLabelValues(string(face.Quality)).Inc()
		return false
	default:
		return true
	}
}
