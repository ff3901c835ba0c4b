package support

import (
	"context"
	"encoding/json"
	"errors"
	"image"
	"net/http"
	"net/http/httptest"
	"sync"

	"github.com/MeKo-Tech/plategate/internal/detector"
	"github.com/MeKo-Tech/plategate/internal/recognizer"
	"github.com/MeKo-Tech/plategate/internal/utils"
)

var errDetectorDown = errors.New("detector model failure")

// ScriptedDetector reports the configured boxes for every image.
type ScriptedDetector struct {
	mu    sync.Mutex
	boxes []utils.Box
	fail  bool
}

// Detect implements pipeline.Detector.
func (d *ScriptedDetector) Detect(context.Context, image.Image) detector.Result {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.fail {
		return detector.Result{Status: detector.StatusFailed, Err: errDetectorDown}
	}
	if len(d.boxes) == 0 {
		return detector.Result{Status: detector.StatusEmpty}
	}
	cands := make([]detector.Candidate, len(d.boxes))
	for i, b := range d.boxes {
		cands[i] = detector.Candidate{Box: b, Confidence: 0.9}
	}
	return detector.Result{Status: detector.StatusOK, Candidates: cands}
}

func (d *ScriptedDetector) add(b utils.Box) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.boxes = append(d.boxes, b)
}

// ScriptedReader returns its reads in order, one per crop, cycling when the
// pipeline reads more crops than reads were scripted.
type ScriptedReader struct {
	mu    sync.Mutex
	reads []recognizer.ReadResult
	next  int
}

// Read implements pipeline.Reader.
func (r *ScriptedReader) Read(context.Context, image.Image) recognizer.ReadResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.reads) == 0 {
		return recognizer.ReadResult{Status: recognizer.StatusEmpty}
	}
	res := r.reads[r.next%len(r.reads)]
	r.next++
	return res
}

func (r *ScriptedReader) add(text string, confidence float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reads = append(r.reads, recognizer.ReadResult{Text: text, Confidence: confidence, Status: recognizer.StatusOK})
}

// ParkingService is a stand-in for the parking service webhook endpoint.
type ParkingService struct {
	Server *httptest.Server

	mu       sync.Mutex
	status   int
	received []map[string]any
}

// NewParkingService starts a parking service answering with status.
func NewParkingService(status int) *ParkingService {
	ps := &ParkingService{status: status}
	ps.Server = httptest.NewServer(http.HandlerFunc(ps.handle))
	return ps
}

func (ps *ParkingService) handle(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/ocr/webhook" || r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	var body map[string]any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	ps.mu.Lock()
	ps.received = append(ps.received, body)
	status := ps.status
	ps.mu.Unlock()
	w.WriteHeader(status)
}

// Received returns the decoded payloads posted so far.
func (ps *ParkingService) Received() []map[string]any {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	return append([]map[string]any(nil), ps.received...)
}

// Close stops the server.
func (ps *ParkingService) Close() { ps.Server.Close() }
