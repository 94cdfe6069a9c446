// Package liveness decides whether a stream of face detections comes from a
// live person. It folds per-frame samples into a session that counts blinks,
// watches for head movement and scores each frame for spoofing.
package liveness

import "math"

// EyeLandmarkCount is the number of points describing one eye.
// Order: outer corner, two upper lid points, inner corner, two lower lid points.
const EyeLandmarkCount = 6

// Point is a 2D position in frame pixel coordinates.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Dist returns the Euclidean distance between p and q.
func (p Point) Dist(q Point) float64 {
	return math.Hypot(p.X-q.X, p.Y-q.Y)
}

// FaceBox is a face bounding box in frame pixel coordinates.
type FaceBox struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Valid reports whether the box has a positive area.
func (b FaceBox) Valid() bool {
	return b.Width > 0 && b.Height > 0
}

// Center returns the midpoint of the box.
func (b FaceBox) Center() Point {
	return Point{X: b.X + b.Width/2, Y: b.Y + b.Height/2}
}

// Area returns Width * Height.
func (b FaceBox) Area() float64 {
	return b.Width * b.Height
}

// EyeLandmarks holds the positional landmark points of a single eye.
type EyeLandmarks []Point

// FrameSample is one processed video frame. A sample with an invalid Box
// represents a frame in which no face was detected.
type FrameSample struct {
	Box           FaceBox      `json:"box"`
	Left          EyeLandmarks `json:"left"`
	Right         EyeLandmarks `json:"right"`
	FrameWidth    int          `json:"frame_width"`
	FrameHeight   int          `json:"frame_height"`
	SequenceIndex int          `json:"sequence_index"`
}

// HasFace reports whether the sample carries a detection.
func (s FrameSample) HasFace() bool {
	return s.Box.Valid()
}
