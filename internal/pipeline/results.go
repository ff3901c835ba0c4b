package pipeline

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ToJSON serializes a Result to pretty JSON.
func ToJSON(res *Result) (string, error) {
	if res == nil {
		return "", errors.New("nil result")
	}
	b, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// ToPlainText returns one plate per line in emission order.
func ToPlainText(res *Result) string {
	if res == nil || len(res.Plates) == 0 {
		return ""
	}
	lines := make([]string, 0, len(res.Plates))
	for _, pl := range res.Plates {
		lines = append(lines, pl.Text)
	}
	return strings.Join(lines, "\n")
}

// ToCSV exports plates of several labelled results with a header row.
func ToCSV(labels []string, results []Result) (string, error) {
	if len(labels) != len(results) {
		return "", fmt.Errorf("got %d labels for %d results", len(labels), len(results))
	}
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	_ = w.Write([]string{"source", "text", "confidence", "x1", "y1", "x2", "y2", "direction", "sent_to_service"})
	for i, res := range results {
		for _, pl := range res.Plates {
			_ = w.Write([]string{
				labels[i],
				pl.Text,
				fmt.Sprintf("%.3f", pl.Confidence),
				strconv.Itoa(pl.Box.X1),
				strconv.Itoa(pl.Box.Y1),
				strconv.Itoa(pl.Box.X2),
				strconv.Itoa(pl.Box.Y2),
				string(pl.Direction),
				strconv.FormatBool(pl.Delivered),
			})
		}
	}
	w.Flush()
	return buf.String(), w.Error()
}

// ValidateResult performs simple consistency checks against the image size.
func ValidateResult(res *Result, width, height int) error {
	if res == nil {
		return errors.New("nil result")
	}
	if res.Detected != (len(res.Plates) > 0) {
		return errors.New("detected flag disagrees with plates")
	}
	for i, pl := range res.Plates {
		if pl.Box.Empty() {
			return fmt.Errorf("plate %d has empty box", i)
		}
		if pl.Box.X1 < 0 || pl.Box.Y1 < 0 || pl.Box.X2 > width || pl.Box.Y2 > height {
			return fmt.Errorf("plate %d box exceeds %dx%d image", i, width, height)
		}
		if pl.Confidence <= MinReadConfidence || pl.Confidence > 1 {
			return fmt.Errorf("plate %d confidence %.3f out of range", i, pl.Confidence)
		}
	}
	return nil
}
