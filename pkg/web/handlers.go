package web

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/teslashibe/go-mocap/pkg/camera"
	"github.com/teslashibe/go-mocap/pkg/facetrack"
	"github.com/teslashibe/go-mocap/pkg/hub"
	"github.com/teslashibe/go-mocap/pkg/mocap"
	"github.com/teslashibe/go-mocap/pkg/protocol"
	"github.com/teslashibe/go-mocap/pkg/tracking"
)

// handleStatus returns the current tracker state
func (s *Server) handleStatus(c *fiber.Ctx) error {
	return c.JSON(s.State())
}

// handleStats returns dispatcher counters plus any registered sections
func (s *Server) handleStats(c *fiber.Ctx) error {
	out := fiber.Map{
		"hubs": fiber.Map{
			"feed":   fiber.Map{"clients": s.feedHub.ClientCount(), "dropped": s.feedHub.Dropped()},
			"status": fiber.Map{"clients": s.statusHub.ClientCount(), "dropped": s.statusHub.Dropped()},
			"logs":   fiber.Map{"clients": s.logHub.ClientCount(), "dropped": s.logHub.Dropped()},
		},
	}
	if s.controls != nil {
		out["dispatcher"] = s.controls.Stats()
	}
	for name, fn := range s.extraStats {
		out[name] = fn()
	}
	return c.JSON(out)
}

// handleNames returns the delivered names, external then head sliders
func (s *Server) handleNames(c *fiber.Ctx) error {
	var names []string
	if s.controls != nil {
		names = s.controls.Names()
	} else {
		s.stateMu.RLock()
		names = s.names
		s.stateMu.RUnlock()
	}
	if names == nil {
		names = []string{}
	}
	return c.JSON(fiber.Map{"names": names, "count": len(names)})
}

// handleGetLogs returns recent log entries
func (s *Server) handleGetLogs(c *fiber.Ctx) error {
	s.logsMu.RLock()
	defer s.logsMu.RUnlock()
	return c.JSON(s.logs)
}

// handleTrackerAction drives the tracker lifecycle
func (s *Server) handleTrackerAction(c *fiber.Ctx) error {
	if s.controls == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "tracker control not configured",
		})
	}

	action := c.Params("action")
	var err error
	switch action {
	case "create":
		err = s.controls.CreateTracker(c.UserContext())
	case "pause":
		err = s.controls.Pause()
	case "resume":
		err = s.controls.Resume()
	case "destroy":
		err = s.controls.Destroy()
	default:
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "unknown action: " + action,
		})
	}

	state := s.controls.State().String()
	if err != nil {
		s.AddLog("error", action+": "+err.Error())
		status := fiber.StatusInternalServerError
		if errors.Is(err, facetrack.ErrDestroyed) || errors.Is(err, mocap.ErrNotInitialized) {
			status = fiber.StatusConflict
		}
		return c.Status(status).JSON(fiber.Map{"error": err.Error(), "state": state})
	}

	s.AddLog("lifecycle", action+" → "+state)
	s.UpdateState(func(*TrackerState) {})
	if msg, err := protocol.NewTrackerStateMessage(state); err == nil {
		s.retain(s.feedHub, "state", msg)
	}
	return c.JSON(fiber.Map{"action": action, "state": state})
}

// handleGetCamera returns the camera config and capabilities
func (s *Server) handleGetCamera(c *fiber.Ctx) error {
	if s.camera == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "no camera configured"})
	}
	return c.JSON(s.camera.GetConfigJSON())
}

// handleUpdateCamera applies a partial camera config or a preset
func (s *Server) handleUpdateCamera(c *fiber.Ctx) error {
	if s.camera == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "no camera configured"})
	}
	var params map[string]interface{}
	if err := c.BodyParser(&params); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	if err := s.camera.UpdateConfig(params); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	s.AddLog("info", "camera config updated")
	return c.JSON(s.camera.GetConfigJSON())
}

// handleCameraPresets lists camera presets
func (s *Server) handleCameraPresets(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"presets":      camera.PresetNames(),
		"descriptions": camera.PresetDescriptions(),
		"configs":      camera.Presets(),
	})
}

func (s *Server) liveTuner() Tuner {
	if s.tuner == nil {
		return nil
	}
	return s.tuner()
}

// handleGetTuning returns the live tracker's tuning parameters
func (s *Server) handleGetTuning(c *fiber.Ctx) error {
	t := s.liveTuner()
	if t == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "no webcam tracker running"})
	}
	return c.JSON(t.GetTuningParams())
}

// handleSetTuning applies tuning parameters to the live tracker
func (s *Server) handleSetTuning(c *fiber.Ctx) error {
	t := s.liveTuner()
	if t == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "no webcam tracker running"})
	}
	var params tracking.TuningParams
	if err := c.BodyParser(&params); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	t.SetTuningParams(params)
	s.AddLog("info", "tracking tuning updated")
	return c.JSON(t.GetTuningParams())
}

// handleFeedWS streams names, values and rotations
func (s *Server) handleFeedWS(c *websocket.Conn) {
	hub.NewClient(s.feedHub, c).Run()
}

// handleStatusWS streams tracker state changes
func (s *Server) handleStatusWS(c *websocket.Conn) {
	hub.NewClient(s.statusHub, c).Run()
}

// handleLogsWS sends recent logs, then streams new ones
func (s *Server) handleLogsWS(c *websocket.Conn) {
	s.logsMu.RLock()
	recent := append([]LogEntry(nil), s.logs...)
	s.logsMu.RUnlock()
	for _, entry := range recent {
		if err := c.WriteJSON(entry); err != nil {
			return
		}
	}
	hub.NewClient(s.logHub, c).Run()
}
