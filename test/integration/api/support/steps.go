package support

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"

	"github.com/cucumber/godog"

	"github.com/MeKo-Tech/plategate/internal/plate"
	"github.com/MeKo-Tech/plategate/internal/utils"
)

// RegisterGivenSteps registers the steps that script the gate.
func (c *APIContext) RegisterGivenSteps(sc *godog.ScenarioContext) {
	sc.Step(`^the detector finds a plate at (\d+),(\d+),(\d+),(\d+)$`, c.theDetectorFindsAPlateAt)
	sc.Step(`^the detector finds no plates$`, func() error { return nil })
	sc.Step(`^the detector fails$`, func() error {
		c.Detector.fail = true
		return nil
	})
	sc.Step(`^the reader reads "([^"]*)" with confidence ([\d.]+)$`, c.theReaderReads)
	sc.Step(`^the parking service (accepts|rejects) notifications$`, c.theParkingService)
	sc.Step(`^the default direction is "([^"]*)"$`, c.theDefaultDirectionIs)
	sc.Step(`^the gate is installed at parking (\d+) camera (\d+)$`, c.theGateIsInstalledAt)
	sc.Step(`^the plate log is enabled$`, func() error {
		c.PlateLogEnabled = true
		return nil
	})
	sc.Step(`^the models failed to load$`, func() error {
		c.ModelsLoaded = false
		return nil
	})
	sc.Step(`^the camera has a (\d+)x(\d+) frame$`, func(w, h int) error { return c.WriteCameraFrame(w, h) })
	sc.Step(`^an image host serves a (\d+)x(\d+) image$`, c.anImageHostServes)
	sc.Step(`^the gate server is running$`, c.StartGate)
}

// RegisterRequestSteps registers the steps that call the gate.
func (c *APIContext) RegisterRequestSteps(sc *godog.ScenarioContext) {
	sc.Step(`^I request "([^"]*)"$`, c.iRequest)
	sc.Step(`^I upload a (\d+)x(\d+) image to "([^"]*)"$`, func(w, h int, path string) error {
		return c.iUploadAnImage(w, h, path, nil)
	})
	sc.Step(`^I upload a (\d+)x(\d+) image to "([^"]*)" with form direction "([^"]*)"$`,
		func(w, h int, path, direction string) error {
			return c.iUploadAnImage(w, h, path, &direction)
		})
	sc.Step(`^I upload a non-image file to "([^"]*)"$`, c.iUploadANonImageFile)
	sc.Step(`^I post JSON '([^']*)' to "([^"]*)"$`, c.iPostJSON)
	sc.Step(`^I submit the hosted image to "([^"]*)" with direction "([^"]*)"$`, c.iSubmitTheHostedImage)
	sc.Step(`^I submit the image URL "([^"]*)" to "([^"]*)"$`, c.iSubmitTheImageURL)
	sc.Step(`^I post an empty request to "([^"]*)"$`, func(path string) error {
		return c.do(http.MethodPost, path, "", nil)
	})
}

// RegisterResponseSteps registers the assertions on responses and side effects.
func (c *APIContext) RegisterResponseSteps(sc *godog.ScenarioContext) {
	sc.Step(`^the response status should be (\d+)$`, c.theResponseStatusShouldBe)
	sc.Step(`^the response field "([^"]*)" should be "([^"]*)"$`, c.theResponseFieldShouldBe)
	sc.Step(`^the response should report (\d+) plates?$`, c.theResponseShouldReportPlates)
	sc.Step(`^the error message should be "([^"]*)"$`, c.theErrorMessageShouldBe)
	sc.Step(`^the error message should start with "([^"]*)"$`, c.theErrorMessageShouldStartWith)
	sc.Step(`^the parking service should have received (\d+) notifications?$`, c.theParkingServiceReceivedCount)
	sc.Step(`^the parking service should have received plate "([^"]*)" with direction "([^"]*)"$`,
		c.theParkingServiceReceivedPlate)
	sc.Step(`^the plate log should hold (\d+) plates?$`, c.thePlateLogShouldHold)
}

func (c *APIContext) theDetectorFindsAPlateAt(x1, y1, x2, y2 int) error {
	c.Detector.add(utils.NewBox(x1, y1, x2, y2))
	return nil
}

func (c *APIContext) theReaderReads(text, confidence string) error {
	conf, err := strconv.ParseFloat(confidence, 64)
	if err != nil {
		return fmt.Errorf("invalid confidence %q: %w", confidence, err)
	}
	c.Reader.add(text, conf)
	return nil
}

func (c *APIContext) theParkingService(verdict string) error {
	status := http.StatusOK
	if verdict == "rejects" {
		status = http.StatusInternalServerError
	}
	c.Parking = NewParkingService(status)
	return nil
}

func (c *APIContext) theDefaultDirectionIs(direction string) error {
	d, err := plate.ParseDirection(direction)
	if err != nil {
		return err
	}
	c.DefaultDirection = d
	return nil
}

func (c *APIContext) theGateIsInstalledAt(parkingID, cameraID int64) error {
	c.ParkingID, c.CameraID = parkingID, cameraID
	return nil
}

func (c *APIContext) anImageHostServes(width, height int) error {
	var buf bytes.Buffer
	if err := png.Encode(&buf, testImage(width, height)); err != nil {
		return err
	}
	data := buf.Bytes()
	c.Images = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/car.png" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(data)
	}))
	return nil
}

func (c *APIContext) iRequest(path string) error {
	return c.do(http.MethodGet, path, "", nil)
}

func (c *APIContext) iUploadAnImage(width, height int, path string, direction *string) error {
	var img bytes.Buffer
	if err := png.Encode(&img, testImage(width, height)); err != nil {
		return err
	}
	return c.upload(path, "car.png", img.Bytes(), direction)
}

func (c *APIContext) iUploadANonImageFile(path string) error {
	return c.upload(path, "notes.txt", []byte("not an image"), nil)
}

func (c *APIContext) upload(path, filename string, data []byte, direction *string) error {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("image", filename)
	if err != nil {
		return err
	}
	if _, err := part.Write(data); err != nil {
		return err
	}
	if direction != nil {
		if err := mw.WriteField("direction", *direction); err != nil {
			return err
		}
	}
	if err := mw.Close(); err != nil {
		return err
	}
	return c.do(http.MethodPost, path, mw.FormDataContentType(), &body)
}

func (c *APIContext) iPostJSON(body, path string) error {
	return c.do(http.MethodPost, path, "application/json", strings.NewReader(body))
}

func (c *APIContext) iSubmitTheHostedImage(path, direction string) error {
	if c.Images == nil {
		return fmt.Errorf("no image host is running")
	}
	return c.postImageURL(path, c.Images.URL+"/car.png", direction)
}

func (c *APIContext) iSubmitTheImageURL(rawURL, path string) error {
	if c.Images != nil {
		rawURL = strings.ReplaceAll(rawURL, "{host}", c.Images.URL)
	}
	return c.postImageURL(path, rawURL, "")
}

func (c *APIContext) postImageURL(path, imageURL, direction string) error {
	req := map[string]string{"image_url": imageURL}
	if direction != "" {
		req["direction"] = direction
	}
	body, err := json.Marshal(req)
	if err != nil {
		return err
	}
	return c.do(http.MethodPost, path, "application/json", bytes.NewReader(body))
}

func (c *APIContext) do(method, path, contentType string, body io.Reader) error {
	if c.HTTP == nil {
		return fmt.Errorf("gate server is not running")
	}
	req, err := http.NewRequestWithContext(context.Background(), method, c.URL(path), body)
	if err != nil {
		return err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("request %s %s failed: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	c.LastStatusCode = resp.StatusCode
	if c.LastBody, err = io.ReadAll(resp.Body); err != nil {
		return err
	}
	c.LastJSON = nil
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(c.LastBody, &c.LastJSON); err != nil {
			return fmt.Errorf("invalid JSON response: %w\n%s", err, c.LastBody)
		}
	}
	return nil
}

func (c *APIContext) theResponseStatusShouldBe(code int) error {
	if c.LastStatusCode != code {
		return fmt.Errorf("expected status %d, got %d: %s", code, c.LastStatusCode, c.LastBody)
	}
	return nil
}

// lookup walks a dotted path such as "plates.0.text" through the last JSON
// response.
func (c *APIContext) lookup(path string) (any, error) {
	if c.LastJSON == nil {
		return nil, fmt.Errorf("last response was not JSON: %s", c.LastBody)
	}
	var cur any = c.LastJSON
	for _, key := range strings.Split(path, ".") {
		switch node := cur.(type) {
		case map[string]any:
			v, ok := node[key]
			if !ok {
				return nil, fmt.Errorf("field %q not found in %s", path, c.LastBody)
			}
			cur = v
		case []any:
			i, err := strconv.Atoi(key)
			if err != nil || i < 0 || i >= len(node) {
				return nil, fmt.Errorf("index %q out of range for %q", key, path)
			}
			cur = node[i]
		default:
			return nil, fmt.Errorf("cannot descend into %q at %q", path, key)
		}
	}
	return cur, nil
}

func (c *APIContext) theResponseFieldShouldBe(path, want string) error {
	v, err := c.lookup(path)
	if err != nil {
		return err
	}
	var got string
	switch val := v.(type) {
	case []any:
		b, _ := json.Marshal(val)
		got = string(b)
	default:
		got = fmt.Sprint(val)
	}
	if got != want {
		return fmt.Errorf("expected %s to be %q, got %q", path, want, got)
	}
	return nil
}

func (c *APIContext) theResponseShouldReportPlates(n int) error {
	v, err := c.lookup("plates")
	if err != nil {
		return err
	}
	plates, ok := v.([]any)
	if !ok {
		return fmt.Errorf("plates is not a list: %s", c.LastBody)
	}
	if len(plates) != n {
		return fmt.Errorf("expected %d plates, got %d: %s", n, len(plates), c.LastBody)
	}
	return nil
}

func (c *APIContext) errorMessage() (string, error) {
	v, err := c.lookup("error")
	if err != nil {
		return "", err
	}
	return fmt.Sprint(v), nil
}

func (c *APIContext) theErrorMessageShouldBe(want string) error {
	got, err := c.errorMessage()
	if err != nil {
		return err
	}
	if got != want {
		return fmt.Errorf("expected error %q, got %q", want, got)
	}
	return nil
}

func (c *APIContext) theErrorMessageShouldStartWith(prefix string) error {
	got, err := c.errorMessage()
	if err != nil {
		return err
	}
	if !strings.HasPrefix(got, prefix) {
		return fmt.Errorf("expected error starting with %q, got %q", prefix, got)
	}
	return nil
}

func (c *APIContext) theParkingServiceReceivedCount(n int) error {
	if c.Parking == nil {
		return fmt.Errorf("no parking service is running")
	}
	if got := len(c.Parking.Received()); got != n {
		return fmt.Errorf("expected %d notifications, got %d", n, got)
	}
	return nil
}

func (c *APIContext) theParkingServiceReceivedPlate(text, direction string) error {
	if c.Parking == nil {
		return fmt.Errorf("no parking service is running")
	}
	for _, payload := range c.Parking.Received() {
		if payload["plate"] == text && payload["direction"] == direction {
			return nil
		}
	}
	return fmt.Errorf("plate %q with direction %q was not delivered: %v", text, direction, c.Parking.Received())
}

func (c *APIContext) thePlateLogShouldHold(n int) error {
	if c.Store == nil {
		return fmt.Errorf("plate log is disabled")
	}
	got, err := c.Store.Count(context.Background())
	if err != nil {
		return err
	}
	if got != n {
		return fmt.Errorf("expected %d logged plates, got %d", n, got)
	}
	return nil
}
