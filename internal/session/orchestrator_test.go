package session

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ayusman/drishti/internal/identity"
	"github.com/ayusman/drishti/internal/liveness"
)

var (
	restBox  = liveness.FaceBox{X: 200, Y: 100, Width: 200, Height: 200}
	movedBox = liveness.FaceBox{X: 220, Y: 100, Width: 200, Height: 200}
	photoBox = liveness.FaceBox{X: 300, Y: 200, Width: 40, Height: 40}
	region   = image.NewRGBA(image.Rect(0, 0, 8, 8))
)

func eye(x, y, height float64) liveness.EyeLandmarks {
	const w = 30
	return liveness.EyeLandmarks{
		{X: x, Y: y},
		{X: x + w/3, Y: y - height/2},
		{X: x + 2*w/3, Y: y - height/2},
		{X: x + w, Y: y},
		{X: x + 2*w/3, Y: y + height/2},
		{X: x + w/3, Y: y + height/2},
	}
}

func sample(index int, box liveness.FaceBox, closed bool) liveness.FrameSample {
	h := 9.0
	if closed {
		h = 1.0
	}
	return liveness.FrameSample{
		Box:           box,
		Left:          eye(box.X+40, box.Y+70, h),
		Right:         eye(box.X+130, box.Y+70, h),
		FrameWidth:    640,
		FrameHeight:   480,
		SequenceIndex: index,
	}
}

// liveSamples blinks through frames 5-14 and moves 20px between 100 and 101.
func liveSamples(n int) []liveness.FrameSample {
	samples := make([]liveness.FrameSample, n)
	for i := range samples {
		box := restBox
		if i > 100 {
			box = movedBox
		}
		samples[i] = sample(i, box, i >= 5 && i < 15)
	}
	return samples
}

func stillSamples(n int, box liveness.FaceBox) []liveness.FrameSample {
	samples := make([]liveness.FrameSample, n)
	for i := range samples {
		samples[i] = sample(i, box, false)
	}
	return samples
}

type fakeExtractor struct {
	embedding identity.Embedding
	err       error
	calls     int
}

func (f *fakeExtractor) Extract(ctx context.Context, img image.Image) (identity.Embedding, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.embedding, nil
}

// blockingSource yields no-face frames until its context ends.
type blockingSource struct {
	started chan struct{}
	index   int
}

func newBlockingSource() *blockingSource {
	return &blockingSource{started: make(chan struct{})}
}

func (s *blockingSource) Next(ctx context.Context) (liveness.FrameSample, error) {
	if s.index == 0 {
		close(s.started)
	}
	s.index++
	if s.index > 1 {
		<-ctx.Done()
		return liveness.FrameSample{}, ctx.Err()
	}
	return liveness.FrameSample{SequenceIndex: s.index}, nil
}

func (s *blockingSource) FaceRegion() (image.Image, error) {
	return nil, ErrNoRegion
}

func axis(v float64) identity.Embedding {
	e := make(identity.Embedding, identity.DefaultDims)
	e[0] = v
	return e
}

func testGallery(t *testing.T) identity.Snapshot {
	t.Helper()
	g, err := identity.NewGallery([]identity.Entry{
		{Label: "alice", Embeddings: []identity.Embedding{axis(0)}},
		{Label: "bob", Embeddings: []identity.Embedding{axis(1.2)}},
	})
	require.NoError(t, err)
	return g.Snapshot()
}

func TestOrchestrator_Recognized(t *testing.T) {
	ext := &fakeExtractor{embedding: axis(0.3)}
	o := New(DefaultConfig(), ext)

	var progress []Progress
	o.OnFrame(func(p Progress) { progress = append(progress, p) })

	res, err := o.Run(context.Background(), NewReplaySource(liveSamples(300), region), testGallery(t))
	require.NoError(t, err)

	assert.Equal(t, OutcomeRecognized, res.Outcome)
	assert.Equal(t, "alice", res.Label)
	assert.InDelta(t, 0.3, res.Distance, 1e-9)
	assert.Equal(t, 2, res.Blinks)
	assert.True(t, res.HeadMovement)
	assert.Equal(t, 300, res.Frames)
	assert.NotEmpty(t, res.ID)
	assert.False(t, res.FinishedAt.Before(res.StartedAt))
	assert.Equal(t, 1, ext.calls)

	require.Len(t, progress, 300)
	assert.Equal(t, res.ID, progress[0].SessionID)
	assert.Equal(t, 2, progress[299].Blinks)
	assert.False(t, o.Active())
}

func TestOrchestrator_Unrecognized(t *testing.T) {
	q := axis(0.6)
	q[1] = math.Sqrt(0.13)
	o := New(DefaultConfig(), &fakeExtractor{embedding: q})

	res, err := o.Run(context.Background(), NewReplaySource(liveSamples(300), region), testGallery(t))
	require.NoError(t, err)

	assert.Equal(t, OutcomeUnrecognized, res.Outcome)
	assert.Empty(t, res.Label)
	assert.InDelta(t, 0.7, res.Distance, 1e-9)
}

func TestOrchestrator_EmptyGallery(t *testing.T) {
	o := New(DefaultConfig(), &fakeExtractor{embedding: axis(0)})

	empty, err := identity.NewGallery(nil)
	require.NoError(t, err)

	res, err := o.Run(context.Background(), NewReplaySource(liveSamples(300), region), empty.Snapshot())
	require.NoError(t, err)

	assert.Equal(t, OutcomeUnrecognized, res.Outcome)
	assert.True(t, math.IsInf(res.Distance, 1))

	data, err := json.Marshal(res)
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Nil(t, decoded["distance"])
	assert.Equal(t, "unrecognized", decoded["outcome"])
}

func TestOrchestrator_LivenessFailed(t *testing.T) {
	ext := &fakeExtractor{embedding: axis(0)}
	o := New(DefaultConfig(), ext)

	res, err := o.Run(context.Background(), NewReplaySource(stillSamples(300, restBox), region), testGallery(t))
	require.NoError(t, err)

	assert.Equal(t, OutcomeLivenessFailed, res.Outcome)
	assert.Equal(t, ReasonInsufficient, res.Reason)
	assert.Equal(t, 0, res.Blinks)
	assert.False(t, res.HeadMovement)
	assert.True(t, math.IsInf(res.Distance, 1), "no comparison happened")
	assert.Zero(t, ext.calls)
}

func TestOrchestrator_SpoofRejected(t *testing.T) {
	ext := &fakeExtractor{embedding: axis(0)}
	o := New(DefaultConfig(), ext)

	res, err := o.Run(context.Background(), NewReplaySource(stillSamples(300, photoBox), region), testGallery(t))
	require.NoError(t, err)

	assert.Equal(t, OutcomeSpoofRejected, res.Outcome)
	assert.Greater(t, res.SpoofConfidence, 0.5)
	assert.Zero(t, ext.calls)
}

func TestOrchestrator_SourceLost(t *testing.T) {
	tests := []struct {
		name   string
		frames int
		blinks int
		moved  bool
	}{
		{name: "before any movement", frames: 50, blinks: 2, moved: false},
		{name: "after both signals", frames: 150, blinks: 2, moved: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ext := &fakeExtractor{embedding: axis(0)}
			o := New(DefaultConfig(), ext)

			res, err := o.Run(context.Background(), NewReplaySource(liveSamples(tt.frames), region), testGallery(t))
			require.NoError(t, err)

			assert.Equal(t, OutcomeLivenessFailed, res.Outcome)
			assert.Equal(t, ReasonSourceLost, res.Reason)
			assert.Equal(t, tt.frames, res.Frames)
			assert.Equal(t, tt.blinks, res.Blinks)
			assert.Equal(t, tt.moved, res.HeadMovement)
			assert.Empty(t, res.Label)
			assert.Zero(t, ext.calls)
		})
	}
}

func TestOrchestrator_CancelledAfterSignals(t *testing.T) {
	ext := &fakeExtractor{embedding: axis(0)}
	o := New(DefaultConfig(), ext)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	o.OnFrame(func(p Progress) {
		if p.Frames == 150 {
			cancel()
		}
	})

	res, err := o.Run(ctx, NewReplaySource(liveSamples(300), region), testGallery(t))
	require.NoError(t, err)

	assert.Equal(t, OutcomeLivenessFailed, res.Outcome)
	assert.Equal(t, ReasonCancelled, res.Reason)
	assert.Equal(t, 150, res.Frames)
	assert.True(t, res.HeadMovement)
	assert.Zero(t, ext.calls)
}

func TestOrchestrator_ExtractionFailures(t *testing.T) {
	tests := []struct {
		name       string
		extractor  Extractor
		region     image.Image
		wantReason string
	}{
		{name: "extractor error", extractor: &fakeExtractor{err: ErrNoEmbedding}, region: region, wantReason: ReasonNoEmbedding},
		{name: "no region", extractor: &fakeExtractor{embedding: axis(0)}, region: nil, wantReason: ReasonNoRegion},
		{name: "no extractor", extractor: nil, region: region, wantReason: ReasonNoEmbedding},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := New(DefaultConfig(), tt.extractor)

			res, err := o.Run(context.Background(), NewReplaySource(liveSamples(300), tt.region), testGallery(t))
			require.NoError(t, err)
			assert.Equal(t, OutcomeLivenessFailed, res.Outcome)
			assert.Equal(t, tt.wantReason, res.Reason)
			assert.Equal(t, 2, res.Blinks)
		})
	}
}

func TestOrchestrator_DimensionMismatchIsAnError(t *testing.T) {
	o := New(DefaultConfig(), &fakeExtractor{embedding: identity.Embedding{0, 0}})

	_, err := o.Run(context.Background(), NewReplaySource(liveSamples(300), region), testGallery(t))
	require.ErrorIs(t, err, identity.ErrDimensionMismatch)
	assert.False(t, o.Active())
}

func TestOrchestrator_OutOfOrderSource(t *testing.T) {
	o := New(DefaultConfig(), &fakeExtractor{embedding: axis(0)})

	samples := liveSamples(10)
	samples[5].SequenceIndex = 2

	_, err := o.Run(context.Background(), NewReplaySource(samples, region), testGallery(t))
	require.ErrorIs(t, err, liveness.ErrOutOfOrder)
}

func TestOrchestrator_RejectsConcurrentRun(t *testing.T) {
	o := New(DefaultConfig(), &fakeExtractor{embedding: axis(0)})
	src := newBlockingSource()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	type outcome struct {
		res Result
		err error
	}
	gallery := testGallery(t)
	done := make(chan outcome, 1)
	go func() {
		res, err := o.Run(ctx, src, gallery)
		done <- outcome{res, err}
	}()

	<-src.started
	require.Eventually(t, o.Active, time.Second, time.Millisecond)

	_, err := o.Run(context.Background(), NewReplaySource(liveSamples(10), region), testGallery(t))
	require.ErrorIs(t, err, ErrSessionActive)

	cancel()
	got := <-done
	require.NoError(t, got.err)
	assert.Equal(t, OutcomeLivenessFailed, got.res.Outcome)
	assert.Equal(t, ReasonCancelled, got.res.Reason)
	assert.Equal(t, 1, got.res.Frames)

	// The next attempt starts from a fresh session.
	res, err := o.Run(context.Background(), NewReplaySource(liveSamples(300), region), testGallery(t))
	require.NoError(t, err)
	assert.Equal(t, OutcomeRecognized, res.Outcome)
	assert.Equal(t, 2, res.Blinks)
}

func TestOrchestrator_Timeout(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Timeout = 20 * time.Millisecond
	o := New(cfg, &fakeExtractor{embedding: axis(0)})

	res, err := o.Run(context.Background(), newBlockingSource(), testGallery(t))
	require.NoError(t, err)
	assert.Equal(t, OutcomeLivenessFailed, res.Outcome)
	assert.Equal(t, ReasonTimeout, res.Reason)
}

func TestOrchestrator_AlreadyCancelled(t *testing.T) {
	o := New(DefaultConfig(), &fakeExtractor{embedding: axis(0)})
	src := NewReplaySource(liveSamples(300), region)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := o.Run(ctx, src, testGallery(t))
	require.NoError(t, err)
	assert.Equal(t, ReasonCancelled, res.Reason)
	assert.Equal(t, 0, res.Frames)
	assert.Equal(t, 300, src.Remaining())
}

func TestSamplesRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	want := liveSamples(3)
	require.NoError(t, EncodeSamples(&buf, want))

	got, err := DecodeSamples(&buf)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	_, err = DecodeSamples(bytes.NewBufferString("{not json"))
	assert.Error(t, err)
}

func TestOutcome_Valid(t *testing.T) {
	for _, o := range Outcomes {
		assert.True(t, o.Valid())
	}
	assert.False(t, Outcome("maybe").Valid())
}
