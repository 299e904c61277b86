package vision

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"render-orchestrator/internal/domain/model"
)

// assessPrompt instructs the oracle to answer in strict JSON so the
// gate stays deterministic regardless of provider verbosity.
const assessPrompt = `You are a strict image QA oracle. The FIRST image is a generated output; the remaining images are references of the expected subject.
Reply with ONLY a JSON object, no prose, no markdown:
{"similarity": <0..1 likeness of the subject to the references>, "solo": <true if exactly one subject is depicted>, "clarity": <0..1 sharpness/absence of artifacts>, "issues": [<short strings naming visible defects, empty if none>]}`

var errNoScore = errors.New("vision: no score in reply")

// parseScore extracts the JSON verdict from a model reply, tolerating
// markdown fences and surrounding chatter.
func parseScore(reply string) (model.QualityScore, error) {
	start := strings.IndexByte(reply, '{')
	end := strings.LastIndexByte(reply, '}')
	if start < 0 || end <= start {
		return model.QualityScore{}, errNoScore
	}
	var s model.QualityScore
	if err := json.Unmarshal([]byte(reply[start:end+1]), &s); err != nil {
		return model.QualityScore{}, fmt.Errorf("vision: parse score: %w", err)
	}
	if s.Similarity < 0 || s.Similarity > 1 || s.Clarity < 0 || s.Clarity > 1 {
		return model.QualityScore{}, fmt.Errorf("vision: score out of range: %+v", s)
	}
	return s, nil
}

func mimeFor(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".webp":
		return "image/webp"
	default:
		return "image/png"
	}
}

// dataURL reads an image and inlines it; both providers accept inline
// payloads so no upload round-trip is needed.
func dataURL(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("vision: read image: %w", err)
	}
	return "data:" + mimeFor(path) + ";base64," + base64.StdEncoding.EncodeToString(b), nil
}
