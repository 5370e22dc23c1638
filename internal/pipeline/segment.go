package pipeline

import (
	"fmt"
	"image"

	"github.com/ivlev/script2video/internal/align"
	"github.com/ivlev/script2video/internal/captions"
	"github.com/ivlev/script2video/internal/config"
)

// State tracks a segment through its stages. Transitions only move
// forward; Failed is terminal from anywhere.
type State int

const (
	StatePending State = iota
	StateImageReady
	StateAudioReady
	StateAligned
	StateCaptionsReady
	StateEncoded
	StateMerged
	StateFailed
)

var stateNames = [...]string{
	"pending", "image-ready", "audio-ready", "aligned",
	"captions-ready", "encoded", "merged", "failed",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return stateNames[s]
}

// Segment is one scene moving through the pipeline. Fields are written
// only by the goroutine processing the segment and read after the group
// finishes.
type Segment struct {
	Index     int
	Scene     config.Scene
	State     State
	ImagePath string
	AudioPath string
	VideoPath string
	Duration  float64
	Words     []align.Word
	Degraded  bool
	Windows   []captions.Window
	ROIs      []image.Rectangle
}

// SceneError reports which scene sank the run and why. Scene indices are
// zero-based, matching the script's scenes list.
type SceneError struct {
	Scene int
	Err   error
}

func (e *SceneError) Error() string {
	return fmt.Sprintf("scene %d: %v", e.Scene, e.Err)
}

func (e *SceneError) Unwrap() error { return e.Err }
