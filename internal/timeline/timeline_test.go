package timeline

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/animflow/internal/model"
)

func opacityTimeline(interp model.Interpolation) *model.Timeline {
	return &model.Timeline{
		ID:         "tl-opacity",
		PropertyID: "opacity",
		Keyframes: []model.Keyframe{
			{ID: "k0", Index: 0, Value: 0, Interpolation: interp},
			{ID: "k1", Index: 20, Value: 100, Interpolation: interp},
		},
	}
}

func TestValueAtIndex_Linear(t *testing.T) {
	s := DefaultSampler{}
	tl := opacityTimeline(model.InterpolationLinear)

	assert.Equal(t, 0.0, s.ValueAtIndex(Request{Timeline: tl, FrameIndex: 0}))
	assert.Equal(t, 50.0, s.ValueAtIndex(Request{Timeline: tl, FrameIndex: 10}))
	assert.Equal(t, 100.0, s.ValueAtIndex(Request{Timeline: tl, FrameIndex: 20}))
}

func TestValueAtIndex_ClampsOutsideRange(t *testing.T) {
	s := DefaultSampler{}
	tl := opacityTimeline(model.InterpolationLinear)

	assert.Equal(t, 0.0, s.ValueAtIndex(Request{Timeline: tl, FrameIndex: -5}))
	assert.Equal(t, 100.0, s.ValueAtIndex(Request{Timeline: tl, FrameIndex: 99}))
}

func TestValueAtIndex_LayerOffset(t *testing.T) {
	s := DefaultSampler{}
	tl := opacityTimeline(model.InterpolationLinear)

	// Layer starts at frame 10, so composition frame 20 is local frame 10.
	assert.Equal(t, 50.0, s.ValueAtIndex(Request{Timeline: tl, FrameIndex: 20, LayerIndex: 10}))
}

func TestValueAtIndex_Hold(t *testing.T) {
	s := DefaultSampler{}
	tl := opacityTimeline(model.InterpolationHold)

	assert.Equal(t, 0.0, s.ValueAtIndex(Request{Timeline: tl, FrameIndex: 19}))
	assert.Equal(t, 100.0, s.ValueAtIndex(Request{Timeline: tl, FrameIndex: 20}))
}

func TestValueAtIndex_EaseIsSymmetric(t *testing.T) {
	s := DefaultSampler{}
	tl := opacityTimeline(model.InterpolationEase)

	assert.InDelta(t, 50.0, s.ValueAtIndex(Request{Timeline: tl, FrameIndex: 10}), 1e-9)
	assert.Less(t, s.ValueAtIndex(Request{Timeline: tl, FrameIndex: 5}), 25.0)
	assert.Greater(t, s.ValueAtIndex(Request{Timeline: tl, FrameIndex: 15}), 75.0)
}

func TestValueAtIndex_Selection(t *testing.T) {
	s := DefaultSampler{}
	tl := opacityTimeline(model.InterpolationLinear)
	sel := &Selection{KeyframeIDs: map[string]bool{"k1": true}, Offset: 20}

	// k1 dragged to frame 40: frame 20 is halfway.
	assert.Equal(t, 50.0, s.ValueAtIndex(Request{Timeline: tl, Selection: sel, FrameIndex: 20}))
	// Stored timeline is untouched.
	assert.Equal(t, 20, tl.Keyframes[1].Index)
}

func TestValueAtIndex_Empty(t *testing.T) {
	s := DefaultSampler{}
	assert.Equal(t, 0.0, s.ValueAtIndex(Request{}))
	assert.Equal(t, 0.0, s.ValueAtIndex(Request{Timeline: &model.Timeline{}}))
}
