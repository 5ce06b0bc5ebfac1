package tracking

import "time"

// TuningParams holds the real-time adjustable tracking parameters.
// These can be modified via the tuning API without recreating the tracker.
type TuningParams struct {
	// Smoothing
	Smoothing  float64 `json:"smoothing"`             // Slerp weight of new readings
	HoldFrames *int    `json:"hold_frames,omitempty"` // Misses held before Lost; nil keeps the current value

	// Detection
	MinConfidence float64 `json:"min_confidence"`
	FPS           float64 `json:"fps"`

	// Calibration
	NeutralNoseRatio float64 `json:"neutral_nose_ratio"`
	YawGain          float64 `json:"yaw_gain"`
	PitchGain        float64 `json:"pitch_gain"`
	RollGain         float64 `json:"roll_gain"`
}

// GetTuningParams returns current tuning parameters from the tracker.
func (t *Tracker) GetTuningParams() TuningParams {
	cfg := t.perception.Config()
	hold := cfg.HoldFrames
	return TuningParams{
		Smoothing:        cfg.Smoothing,
		HoldFrames:       &hold,
		MinConfidence:    cfg.MinConfidence,
		FPS:              1.0 / cfg.FrameInterval.Seconds(),
		NeutralNoseRatio: cfg.NeutralNoseRatio,
		YawGain:          cfg.YawGain,
		PitchGain:        cfg.PitchGain,
		RollGain:         cfg.RollGain,
	}
}

// SetTuningParams updates tuning parameters at runtime.
// Only positive values are applied. HoldFrames is applied when set, since
// zero is a valid hold.
func (t *Tracker) SetTuningParams(params TuningParams) {
	cfg := t.perception.Config()

	if params.Smoothing > 0 {
		cfg.Smoothing = clamp(params.Smoothing, 0.01, 1.0)
	}
	if params.HoldFrames != nil && *params.HoldFrames >= 0 {
		cfg.HoldFrames = *params.HoldFrames
	}
	if params.MinConfidence > 0 {
		cfg.MinConfidence = clamp(params.MinConfidence, 0, 1)
	}
	if params.FPS > 0 {
		fps := clamp(params.FPS, 1, 120)
		cfg.FrameInterval = time.Duration(float64(time.Second) / fps)
		t.interval.Store(int64(cfg.FrameInterval))
	}
	if params.NeutralNoseRatio > 0 && params.NeutralNoseRatio < 1 {
		cfg.NeutralNoseRatio = params.NeutralNoseRatio
	}
	if params.YawGain > 0 {
		cfg.YawGain = params.YawGain
	}
	if params.PitchGain > 0 {
		cfg.PitchGain = params.PitchGain
	}
	if params.RollGain > 0 {
		cfg.RollGain = params.RollGain
	}

	t.perception.SetConfig(cfg)
	t.logger.Info("tuning updated",
		"smoothing", cfg.Smoothing,
		"hold_frames", cfg.HoldFrames,
		"min_confidence", cfg.MinConfidence,
		"interval", cfg.FrameInterval)
}
