package commands

import (
	"encoding/json"
	"io"
	"sync"
	"time"

	"github.com/RyanBlaney/sonido-mimic/logging"
	"github.com/RyanBlaney/sonido-mimic/mimic"
)

type pixelPoint struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type predictionLine struct {
	T         float64      `json:"t"`
	ModelID   string       `json:"model_id,omitempty"`
	Keypoints []pixelPoint `json:"keypoints"`
}

// jsonlRenderer writes each prediction as one JSON line in pixel space,
// scaled to the frame of the most recent pose.
type jsonlRenderer struct {
	mu      sync.Mutex
	enc     *json.Encoder
	width   float64
	height  float64
	modelID string
	clock   func() time.Duration
	written int
	logger  logging.Logger
}

func newJSONLRenderer(w io.Writer, width, height float64, clock func() time.Duration) *jsonlRenderer {
	return &jsonlRenderer{
		enc:    json.NewEncoder(w),
		width:  width,
		height: height,
		clock:  clock,
		logger: logging.WithFields(logging.Fields{"component": "jsonl_renderer"}),
	}
}

func (r *jsonlRenderer) SetModel(id string) {
	r.mu.Lock()
	r.modelID = id
	r.mu.Unlock()
}

// SetFrame changes the pixel frame predictions are mapped into. Non-positive
// sizes are ignored.
func (r *jsonlRenderer) SetFrame(width, height float64) {
	if width <= 0 || height <= 0 {
		return
	}
	r.mu.Lock()
	r.width, r.height = width, height
	r.mu.Unlock()
}

func (r *jsonlRenderer) Render(p mimic.Prediction) {
	line := predictionLine{
		T:         r.clock().Seconds(),
		Keypoints: make([]pixelPoint, len(p.Landmarks)),
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for i, l := range p.Landmarks {
		x, y := l.Pixels(r.width, r.height)
		line.Keypoints[i] = pixelPoint{X: x, Y: y}
	}
	line.ModelID = r.modelID
	if err := r.enc.Encode(line); err != nil {
		r.logger.Error(err, "Failed to write prediction")
		return
	}
	r.written++
}

func (r *jsonlRenderer) Written() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.written
}
