package commands

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/RyanBlaney/sonido-mimic/mimic"
)

// poseLine is one line of a pose log:
//
//	{"t":1.25,"width":600,"height":480,"keypoints":[{"part":"nose","score":0.9,"x":300,"y":120}]}
type poseLine struct {
	T         float64          `json:"t"`
	Width     float64          `json:"width,omitempty"`
	Height    float64          `json:"height,omitempty"`
	Keypoints []mimic.Keypoint `json:"keypoints"`
}

// timedPose is a pose due at Offset from the start of the audio.
type timedPose struct {
	Offset time.Duration
	Pose   *mimic.PoseResult
}

func loadPoseFile(path string, width, height float64) ([]timedPose, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open pose log: %w", err)
	}
	defer f.Close()
	return readPoses(f, width, height)
}

// readPoses parses a pose log, filling missing frame sizes with the given
// defaults, and orders it by time.
func readPoses(r io.Reader, width, height float64) ([]timedPose, error) {
	var poses []timedPose

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for n := 1; scanner.Scan(); n++ {
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}

		var line poseLine
		if err := json.Unmarshal([]byte(text), &line); err != nil {
			return nil, fmt.Errorf("pose log line %d: %w", n, err)
		}
		if line.T < 0 {
			return nil, fmt.Errorf("pose log line %d: negative time %g", n, line.T)
		}
		if line.Width == 0 {
			line.Width = width
		}
		if line.Height == 0 {
			line.Height = height
		}

		offset := time.Duration(line.T * float64(time.Second))
		poses = append(poses, timedPose{
			Offset: offset,
			Pose: &mimic.PoseResult{
				Keypoints: line.Keypoints,
				Width:     line.Width,
				Height:    line.Height,
			},
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read pose log: %w", err)
	}

	sort.SliceStable(poses, func(i, j int) bool { return poses[i].Offset < poses[j].Offset })
	return poses, nil
}
