// Package timeline samples keyframed property timelines at a frame index.
package timeline

import (
	"math"
	"sort"

	"github.com/roach88/animflow/internal/model"
)

// Selection is an in-progress keyframe drag: the selected keyframes are
// sampled as if moved by Offset frames. A nil selection samples the timeline
// as stored.
type Selection struct {
	KeyframeIDs map[string]bool
	Offset      int
}

// Request mirrors the host's getTimelineValueAtIndex call.
type Request struct {
	Timeline   *model.Timeline
	Selection  *Selection
	FrameIndex int
	LayerIndex int
}

// Sampler resolves a timeline to a number at a frame.
type Sampler interface {
	ValueAtIndex(req Request) float64
}

// DefaultSampler interpolates between keyframes using each keyframe's
// interpolation mode. Keyframe indices are relative to the layer start.
type DefaultSampler struct{}

// ValueAtIndex implements Sampler.
//
// Before the first keyframe the first value holds; after the last the last
// value holds. A timeline without keyframes samples to 0.
func (DefaultSampler) ValueAtIndex(req Request) float64 {
	if req.Timeline == nil || len(req.Timeline.Keyframes) == 0 {
		return 0
	}
	kfs := effectiveKeyframes(req.Timeline.Keyframes, req.Selection)
	local := float64(req.FrameIndex - req.LayerIndex)

	first, last := kfs[0], kfs[len(kfs)-1]
	if local <= float64(first.Index) {
		return first.Value
	}
	if local >= float64(last.Index) {
		return last.Value
	}

	// First keyframe strictly after local; its predecessor starts the segment.
	i := sort.Search(len(kfs), func(i int) bool { return float64(kfs[i].Index) > local })
	a, b := kfs[i-1], kfs[i]
	t := (local - float64(a.Index)) / float64(b.Index-a.Index)
	return interpolate(a, b, t)
}

func effectiveKeyframes(in []model.Keyframe, sel *Selection) []model.Keyframe {
	kfs := make([]model.Keyframe, len(in))
	copy(kfs, in)
	if sel != nil && sel.Offset != 0 {
		for i := range kfs {
			if sel.KeyframeIDs[kfs[i].ID] {
				kfs[i].Index += sel.Offset
			}
		}
	}
	sort.SliceStable(kfs, func(i, j int) bool { return kfs[i].Index < kfs[j].Index })
	return kfs
}

func interpolate(a, b model.Keyframe, t float64) float64 {
	switch a.Interpolation {
	case model.InterpolationHold:
		return a.Value
	case model.InterpolationEase:
		t = easeInOutCubic(t)
	}
	return a.Value + (b.Value-a.Value)*t
}

func easeInOutCubic(t float64) float64 {
	if t < 0.5 {
		return 4 * t * t * t
	}
	return 1 - math.Pow(-2*t+2, 3)/2
}
