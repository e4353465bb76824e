package mimic

import (
	"fmt"
	"math"
	"time"
)

// Keypoint is one detected body landmark in pixel space.
type Keypoint struct {
	Part  string  `json:"part"`
	Score float64 `json:"score"`
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
}

// PoseResult is one pose estimate: ranked keypoints and the size of the
// frame they were detected in.
type PoseResult struct {
	Keypoints []Keypoint `json:"keypoints"`
	Width     float64    `json:"width"`
	Height    float64    `json:"height"`
	At        time.Time  `json:"at"`
}

// Landmark is a position normalized to the unit square.
type Landmark struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Pixels maps the landmark back into a width x height frame.
func (l Landmark) Pixels(width, height float64) (x, y float64) {
	return l.X * width, l.Y * height
}

// LandmarkSnapshot is an ordered, fixed-length set of landmarks.
type LandmarkSnapshot []Landmark

// Flatten returns [x0, y0, x1, y1, ...].
func (s LandmarkSnapshot) Flatten() []float64 {
	out := make([]float64, 0, 2*len(s))
	for _, l := range s {
		out = append(out, l.X, l.Y)
	}
	return out
}

// ExtractLandmarks takes the first k keypoints of pose and normalizes them by
// the frame size. Coordinates outside the frame are clamped to [0,1].
func ExtractLandmarks(pose *PoseResult, k int) (LandmarkSnapshot, error) {
	if pose == nil {
		return nil, ErrMissingPose
	}
	if len(pose.Keypoints) < k {
		return nil, fmt.Errorf("%d keypoints, need %d: %w", len(pose.Keypoints), k, ErrMissingPose)
	}
	if !(pose.Width > 0) || !(pose.Height > 0) {
		return nil, fmt.Errorf("frame %gx%g: %w", pose.Width, pose.Height, ErrInvalidFrame)
	}

	out := make(LandmarkSnapshot, k)
	for i, kp := range pose.Keypoints[:k] {
		out[i] = Landmark{
			X: clampUnit(kp.X / pose.Width),
			Y: clampUnit(kp.Y / pose.Height),
		}
	}
	return out, nil
}

// LandmarksFromVector is the inverse of Flatten.
func LandmarksFromVector(v []float64) (LandmarkSnapshot, error) {
	if len(v)%2 != 0 {
		return nil, fmt.Errorf("vector of odd length %d: %w", len(v), ErrShapeMismatch)
	}
	out := make(LandmarkSnapshot, len(v)/2)
	for i := range out {
		out[i] = Landmark{X: v[2*i], Y: v[2*i+1]}
	}
	return out, nil
}

func clampUnit(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Min(math.Max(v, 0), 1)
}
