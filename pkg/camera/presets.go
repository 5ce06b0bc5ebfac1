package camera

// Preset names accepted by the "preset" key of UpdateConfig.
const (
	PresetDefault = "default"
	Preset720p    = "720p"
	Preset1080p   = "1080p"
	PresetFast    = "fast"
	PresetNight   = "night"
	PresetZoom2x  = "zoom2x"
)

type preset struct {
	name  string
	about string
	apply func(*Config)
}

// presets is ordered as PresetNames reports it.
var presets = []preset{
	{PresetDefault, "640x480 at 30 FPS", func(*Config) {}},
	{Preset720p, "1280x720 for faces across the room", func(c *Config) {
		c.Width, c.Height = 1280, 720
	}},
	{Preset1080p, "1920x1080, steadier landmarks at a distance", func(c *Config) {
		c.Width, c.Height, c.Framerate = 1920, 1080, 30
	}},
	{PresetFast, "320x240 at 60 FPS for the lowest latency", func(c *Config) {
		c.Width, c.Height, c.Framerate, c.Quality = 320, 240, 60, 70
	}},
	{PresetNight, "brighter, slower capture for dim rooms", func(c *Config) {
		c.Brightness, c.Framerate = 0.4, 15
	}},
	{PresetZoom2x, "2x center crop for a subject far from the camera", func(c *Config) {
		c.ZoomLevel = 2.0
	}},
}

func build(p preset) Config {
	cfg := DefaultConfig()
	p.apply(&cfg)
	return cfg
}

// Presets returns every preset configuration keyed by name.
func Presets() map[string]Config {
	out := make(map[string]Config, len(presets))
	for _, p := range presets {
		out[p.name] = build(p)
	}
	return out
}

// PresetNames lists the preset names in display order.
func PresetNames() []string {
	names := make([]string, len(presets))
	for i, p := range presets {
		names[i] = p.name
	}
	return names
}

// PresetDescriptions maps each preset name to a one-line summary.
func PresetDescriptions() map[string]string {
	out := make(map[string]string, len(presets))
	for _, p := range presets {
		out[p.name] = p.about
	}
	return out
}

// GetPreset returns a preset config by name, or nil if not found.
func GetPreset(name string) *Config {
	for _, p := range presets {
		if p.name == name {
			cfg := build(p)
			return &cfg
		}
	}
	return nil
}

// HD720Config returns the 720p preset.
func HD720Config() Config { return *GetPreset(Preset720p) }

// FastConfig returns the low-latency preset.
func FastConfig() Config { return *GetPreset(PresetFast) }

// NightModeConfig returns the dim-room preset.
func NightModeConfig() Config { return *GetPreset(PresetNight) }
