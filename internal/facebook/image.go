package facebook

import (
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/deusflow/pagepost/internal/domain"
)

const DefaultImageDir = "generated_images"

var nowFunc = time.Now

// SaveBase64Image decodes a base64 PNG (optionally a data URI) into
// dir/image_<timestamp>.png and returns the absolute path, ready for Publish.
func SaveBase64Image(data, dir string) (string, error) {
	if dir == "" {
		dir = DefaultImageDir
	}
	if i := strings.Index(data, ";base64,"); i >= 0 && strings.HasPrefix(data, "data:") {
		data = data[i+len(";base64,"):]
	}

	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(data))
	if err != nil {
		return "", fmt.Errorf("%w: decode base64 image: %v", domain.ErrMalformedResponse, err)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create image dir: %w", err)
	}
	name := fmt.Sprintf("image_%s.png", nowFunc().Format("20060102_150405"))
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return "", fmt.Errorf("write image: %w", err)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return path, nil
	}
	return abs, nil
}
