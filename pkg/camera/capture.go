package camera

import (
	"errors"
	"fmt"
	"image"
	"sync"

	"gocv.io/x/gocv"
)

// ErrOpen is returned when the capture device cannot be opened.
var ErrOpen = errors.New("camera: cannot open capture device")

// ErrClosed is returned by Read after Close.
var ErrClosed = errors.New("camera: capture closed")

// Capture reads JPEG frames from an OpenCV video device.
type Capture struct {
	mu     sync.Mutex
	vc     *gocv.VideoCapture
	frame  gocv.Mat
	config Config
	closed bool
}

// Open opens cfg.Device and applies cfg.
func Open(cfg Config) (*Capture, error) {
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, fmt.Errorf("%w: %v", ErrOpen, errs)
	}

	vc, err := gocv.OpenVideoCapture(cfg.Device)
	if err != nil {
		return nil, fmt.Errorf("%w: device %d: %v", ErrOpen, cfg.Device, err)
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, fmt.Errorf("%w: device %d", ErrOpen, cfg.Device)
	}

	c := &Capture{vc: vc, frame: gocv.NewMat()}
	c.apply(cfg)
	return c, nil
}

// Apply changes capture settings on the open device. It is suitable as a
// Manager.OnConfigChange callback. Switching devices requires reopening.
func (c *Capture) Apply(cfg Config) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if cfg.Device != c.config.Device {
		return fmt.Errorf("camera: device change from %d to %d needs a restart", c.config.Device, cfg.Device)
	}
	c.apply(cfg)
	return nil
}

func (c *Capture) apply(cfg Config) {
	c.vc.Set(gocv.VideoCaptureFrameWidth, float64(cfg.Width))
	c.vc.Set(gocv.VideoCaptureFrameHeight, float64(cfg.Height))
	c.vc.Set(gocv.VideoCaptureFPS, float64(cfg.Framerate))
	if cfg.Brightness != 0 {
		c.vc.Set(gocv.VideoCaptureBrightness, cfg.Brightness)
	}
	if cfg.Exposure > 0 {
		c.vc.Set(gocv.VideoCaptureExposure, cfg.Exposure)
	}
	c.config = cfg
}

// Config returns the settings last applied.
func (c *Capture) Config() Config {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.config
}

// Read grabs the next frame and returns it JPEG encoded along with its size.
func (c *Capture) Read() (jpeg []byte, width, height int, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, 0, 0, ErrClosed
	}

	if ok := c.vc.Read(&c.frame); !ok || c.frame.Empty() {
		return nil, 0, 0, fmt.Errorf("camera: empty frame from device %d", c.config.Device)
	}

	img := c.frame
	if c.config.ZoomLevel > 1 {
		cropped := zoom(img, c.config.ZoomLevel)
		defer cropped.Close()
		img = cropped
	}
	if c.config.Mirror {
		flipped := gocv.NewMat()
		defer flipped.Close()
		gocv.Flip(img, &flipped, 1)
		img = flipped
	}

	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, img, []int{int(gocv.IMWriteJpegQuality), c.config.Quality})
	if err != nil {
		return nil, 0, 0, fmt.Errorf("camera: encode: %w", err)
	}
	defer buf.Close()

	// GetBytes aliases native memory that Close frees.
	out := append([]byte(nil), buf.GetBytes()...)
	return out, img.Cols(), img.Rows(), nil
}

// zoom returns a copy of the centered 1/level crop of img.
func zoom(img gocv.Mat, level float64) gocv.Mat {
	w, h := img.Cols(), img.Rows()
	cw, ch := int(float64(w)/level), int(float64(h)/level)
	x, y := (w-cw)/2, (h-ch)/2
	region := img.Region(image.Rect(x, y, x+cw, y+ch))
	defer region.Close()
	return region.Clone()
}

// Close releases the device.
func (c *Capture) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	c.frame.Close()
	return c.vc.Close()
}
