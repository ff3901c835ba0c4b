package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/plategate/internal/detector"
	"github.com/MeKo-Tech/plategate/internal/plate"
	"github.com/MeKo-Tech/plategate/internal/recognizer"
	"github.com/MeKo-Tech/plategate/internal/utils"
)

var fixedNow = time.Date(2024, 5, 1, 8, 30, 15, 0, time.UTC)

func newTestPipeline(det Detector, rdr Reader, n Notifier, opts ...Option) *Pipeline {
	opts = append([]Option{WithClock(func() time.Time { return fixedNow }), WithLocation(3, 7)}, opts...)
	p := New(det, rdr, n, opts...)
	p.newID = func() string { return "evt-1" }
	return p
}

func TestProcess_EmitsValidatedPlate(t *testing.T) {
	n := &fakeNotifier{accept: true}
	rdr := readsAs(okRead("AB123CD", 0.8))
	p := newTestPipeline(detectBoxes(utils.NewBox(10, 10, 110, 60)), rdr, n)

	res := p.Process(context.Background(), blankImage(640, 480), "EXIT")

	want := Result{
		Detected:  true,
		Direction: plate.Exit,
		Plates: []Plate{{
			Text: "AB123CD", Confidence: 0.8, Box: utils.NewBox(10, 10, 110, 60),
			Direction: plate.Exit, Delivered: true,
		}},
	}
	if diff := cmp.Diff(want, res); diff != "" {
		t.Errorf("Process() mismatch (-want +got):\n%s", diff)
	}

	require.Len(t, n.events, 1)
	wantEvent := plate.Event{
		ID: "evt-1", Plate: "AB123CD", Confidence: 0.8, Box: utils.NewBox(10, 10, 110, 60),
		Direction: plate.Exit, ParkingID: 3, CameraID: 7, Timestamp: fixedNow,
	}
	if diff := cmp.Diff(wantEvent, n.events[0]); diff != "" {
		t.Errorf("notified event mismatch (-want +got):\n%s", diff)
	}

	require.Len(t, rdr.crops, 1)
	assert.Equal(t, 100, rdr.crops[0].Dx())
	assert.Equal(t, 50, rdr.crops[0].Dy())
}

func TestProcess_EmitsNormalizedText(t *testing.T) {
	n := &fakeNotifier{accept: true}
	sink := &fakeSink{}
	p := newTestPipeline(detectBoxes(utils.NewBox(10, 10, 110, 60)),
		readsAs(okRead("ab-123 cd", 0.8)), n, WithSinks(sink))

	res := p.Process(context.Background(), blankImage(640, 480), "")

	require.Len(t, res.Plates, 1)
	assert.Equal(t, "AB123CD", res.Plates[0].Text)
	require.Len(t, n.events, 1)
	assert.Equal(t, "AB123CD", n.events[0].Plate)
	require.Len(t, sink.events, 1)
	assert.Equal(t, "AB123CD", sink.events[0].Plate)
}

func TestProcess_ConfidenceThreshold(t *testing.T) {
	tests := []struct {
		name string
		conf float64
		want int
	}{
		{"exactly threshold is skipped", 0.5, 0},
		{"just above threshold is kept", 0.50001, 1},
		{"low confidence", 0.2, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := &fakeNotifier{accept: true}
			p := newTestPipeline(detectBoxes(utils.NewBox(0, 0, 50, 20)), readsAs(okRead("AB123CD", tt.conf)), n)
			res := p.Process(context.Background(), blankImage(100, 100), "")
			assert.Len(t, res.Plates, tt.want)
			assert.Len(t, n.events, tt.want, "notifier only sees emitted plates")
		})
	}
}

func TestProcess_OutOfBoundsBoxNeverRead(t *testing.T) {
	rdr := readsAs(okRead("AB123CD", 0.9))
	p := newTestPipeline(detectBoxes(utils.NewBox(700, 500, 800, 560)), rdr, &fakeNotifier{accept: true})

	res := p.Process(context.Background(), blankImage(640, 480), "")
	assert.False(t, res.Detected)
	assert.Empty(t, res.Plates)
	assert.Equal(t, 0, rdr.calls())
}

func TestProcess_PartiallyOutsideBoxIsClipped(t *testing.T) {
	rdr := readsAs(okRead("AB123CD", 0.9))
	p := newTestPipeline(detectBoxes(utils.NewBox(600, 450, 700, 520)), rdr, &fakeNotifier{accept: true})

	res := p.Process(context.Background(), blankImage(640, 480), "")
	require.Len(t, res.Plates, 1)
	assert.Equal(t, utils.NewBox(600, 450, 640, 480), res.Plates[0].Box)
}

func TestProcess_NoCandidates(t *testing.T) {
	rdr := readsAs()
	p := newTestPipeline(detectBoxes(), rdr, &fakeNotifier{accept: true})

	res := p.Process(context.Background(), blankImage(64, 64), "")
	assert.False(t, res.Detected)
	assert.NotNil(t, res.Plates)
	assert.Empty(t, res.Plates)
	assert.Equal(t, plate.Entry, res.Direction)
	assert.Equal(t, 0, rdr.calls())
}

func TestProcess_DetectorFailure(t *testing.T) {
	det := &fakeDetector{result: detector.Result{Status: detector.StatusFailed}}
	res := newTestPipeline(det, readsAs(okRead("AB123CD", 0.9)), nil).Process(context.Background(), blankImage(64, 64), "")
	assert.False(t, res.Detected)
	assert.Empty(t, res.Plates)
}

func TestProcess_NoDeduplication(t *testing.T) {
	n := &fakeNotifier{accept: true}
	det := detectBoxes(utils.NewBox(0, 0, 60, 20), utils.NewBox(100, 0, 160, 20))
	p := newTestPipeline(det, readsAs(okRead("AB123CD", 0.9)), n)

	res := p.Process(context.Background(), blankImage(200, 100), "")
	require.Len(t, res.Plates, 2)
	assert.Equal(t, res.Plates[0].Text, res.Plates[1].Text)
	assert.Len(t, n.events, 2)
}

func TestProcess_SkipsUnusableReads(t *testing.T) {
	det := detectBoxes(
		utils.NewBox(0, 0, 50, 20),
		utils.NewBox(0, 30, 50, 50),
		utils.NewBox(0, 60, 50, 80),
		utils.NewBox(0, 90, 50, 110),
	)
	rdr := readsAs(
		recognizer.ReadResult{Status: recognizer.StatusFailed},
		recognizer.ReadResult{Status: recognizer.StatusEmpty},
		okRead("ABCDEF", 0.95), // rejected by the validator
		okRead("XY98765", 0.7),
	)
	n := &fakeNotifier{accept: true}
	res := newTestPipeline(det, rdr, n).Process(context.Background(), blankImage(100, 120), "")

	require.Len(t, res.Plates, 1)
	assert.Equal(t, "XY98765", res.Plates[0].Text)
	assert.Equal(t, 4, rdr.calls())
	assert.Len(t, n.events, 1)
}

func TestProcess_FailedDeliveryStillEmitted(t *testing.T) {
	n := &fakeNotifier{accept: false}
	res := newTestPipeline(detectBoxes(utils.NewBox(0, 0, 50, 20)), readsAs(okRead("AB123CD", 0.9)), n).
		Process(context.Background(), blankImage(100, 100), "")
	require.Len(t, res.Plates, 1)
	assert.False(t, res.Plates[0].Delivered)
	assert.True(t, res.Detected)
}

func TestProcess_SinkErrorsAreLoggedOnly(t *testing.T) {
	failing := &fakeSink{fail: true}
	healthy := &fakeSink{}
	p := newTestPipeline(detectBoxes(utils.NewBox(0, 0, 50, 20)), readsAs(okRead("AB123CD", 0.9)),
		&fakeNotifier{accept: true}, WithSinks(failing, healthy))

	before := testutil.ToFloat64(sinkErrorsTotal)
	res := p.Process(context.Background(), blankImage(100, 100), "")

	require.Len(t, res.Plates, 1)
	require.Len(t, failing.events, 1)
	require.Len(t, healthy.events, 1)
	assert.True(t, healthy.events[0].Delivered, "sinks see the delivery outcome")
	assert.Equal(t, before+1, testutil.ToFloat64(sinkErrorsTotal))
}

func TestProcess_InvalidDirectionFallsBack(t *testing.T) {
	n := &fakeNotifier{accept: true}
	p := newTestPipeline(detectBoxes(utils.NewBox(0, 0, 50, 20)), readsAs(okRead("AB123CD", 0.9)), n,
		WithDefaultDirection(plate.Exit))

	res := p.Process(context.Background(), blankImage(100, 100), "north")
	assert.Equal(t, plate.Exit, res.Direction)
	require.Len(t, n.events, 1)
	assert.Equal(t, plate.Exit, n.events[0].Direction)
}

func TestProcess_Uninitialized(t *testing.T) {
	p := New(nil, nil, nil)
	assert.False(t, p.Ready())
	res := p.Process(context.Background(), blankImage(10, 10), "exit")
	assert.Equal(t, Result{Plates: []Plate{}, Direction: plate.Exit}, res)
}

func TestProcess_Metrics(t *testing.T) {
	emitted := platesEmitted.WithLabelValues("entry")
	delivered := deliveriesTotal.WithLabelValues("delivered")
	lowConf := readsTotal.WithLabelValues("low_confidence")
	beforeEmitted, beforeDelivered, beforeLow := testutil.ToFloat64(emitted), testutil.ToFloat64(delivered), testutil.ToFloat64(lowConf)

	det := detectBoxes(utils.NewBox(0, 0, 50, 20), utils.NewBox(0, 30, 50, 50))
	p := newTestPipeline(det, readsAs(okRead("AB123CD", 0.9), okRead("AB123CD", 0.4)), &fakeNotifier{accept: true})
	p.Process(context.Background(), blankImage(100, 100), "entry")

	assert.Equal(t, beforeEmitted+1, testutil.ToFloat64(emitted))
	assert.Equal(t, beforeDelivered+1, testutil.ToFloat64(delivered))
	assert.Equal(t, beforeLow+1, testutil.ToFloat64(lowConf))
}

func TestProcessAll_PreservesOrder(t *testing.T) {
	p := newTestPipeline(detectBoxes(utils.NewBox(0, 0, 50, 20)), readsAs(okRead("AB123CD", 0.9)), &fakeNotifier{accept: true})
	jobs := []Job{
		{Image: blankImage(100, 100), Direction: "entry"},
		{Image: blankImage(100, 100), Direction: "exit"},
		{Image: blankImage(100, 100), Direction: "exit"},
		{Image: blankImage(100, 100), Direction: "entry"},
	}

	results, err := p.ProcessAll(context.Background(), jobs, 3)
	require.NoError(t, err)
	require.Len(t, results, 4)
	for i, want := range []plate.Direction{plate.Entry, plate.Exit, plate.Exit, plate.Entry} {
		assert.Equal(t, want, results[i].Direction, "job %d", i)
		assert.True(t, results[i].Detected)
	}
}

func TestProcessAll_Errors(t *testing.T) {
	p := newTestPipeline(detectBoxes(), readsAs(), nil)
	_, err := p.ProcessAll(context.Background(), nil, 2)
	assert.Error(t, err)

	_, err = New(nil, nil, nil).ProcessAll(context.Background(), []Job{{Image: blankImage(1, 1)}}, 1)
	assert.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = p.ProcessAll(ctx, []Job{{Image: blankImage(1, 1)}}, 1)
	assert.ErrorIs(t, err, context.Canceled)
}
