package mimic

import "sync"

// LandmarkSource yields the landmarks of the most recent pose estimate.
type LandmarkSource interface {
	Landmarks() (LandmarkSnapshot, error)
}

// PoseTracker keeps the latest pose estimate. Estimates arrive at their own
// cadence, so a reader may see a pose up to one estimation cycle old.
type PoseTracker struct {
	mu        sync.RWMutex
	latest    *PoseResult
	keypoints int
}

func NewPoseTracker(keypoints int) *PoseTracker {
	return &PoseTracker{keypoints: keypoints}
}

// Update replaces the latest estimate. A nil pose clears it.
func (t *PoseTracker) Update(pose *PoseResult) {
	var cp *PoseResult
	if pose != nil {
		p := *pose
		p.Keypoints = append([]Keypoint(nil), pose.Keypoints...)
		cp = &p
	}

	t.mu.Lock()
	t.latest = cp
	t.mu.Unlock()
}

// Latest returns the stored estimate, nil before the first one.
func (t *PoseTracker) Latest() *PoseResult {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.latest
}

// Landmarks extracts the tracked keypoints from the latest estimate.
func (t *PoseTracker) Landmarks() (LandmarkSnapshot, error) {
	return ExtractLandmarks(t.Latest(), t.keypoints)
}
