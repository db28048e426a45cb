package media

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"regexp"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	_ "golang.org/x/image/webp"
)

// Fetcher downloads remote image references.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Image is one decoded still.
type Image struct {
	Data     []byte
	MIMEType string
	Ext      string
	Width    int
	Height   int
}

// decodable lists the formats registered with package image above.
var decodable = map[string]bool{
	"image/png":  true,
	"image/jpeg": true,
	"image/gif":  true,
	"image/webp": true,
}

var dataURIPattern = regexp.MustCompile(`^data:image/(\w+);base64,(.+)$`)

// LoadImage resolves ref to image bytes. ref may be a data URI, an http(s)
// URL (needs f), a local file path, or bare base64. The bytes must sniff as
// an image.
func LoadImage(ctx context.Context, ref string, f Fetcher) (*Image, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, fmt.Errorf("empty image reference")
	}

	var data []byte
	switch {
	case strings.HasPrefix(ref, "data:"):
		m := dataURIPattern.FindStringSubmatch(ref)
		if m == nil {
			return nil, fmt.Errorf("not a base64 image data URI")
		}
		b, err := base64.StdEncoding.DecodeString(m[2])
		if err != nil {
			return nil, fmt.Errorf("decode data URI: %w", err)
		}
		data = b
	case strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://"):
		if f == nil {
			return nil, fmt.Errorf("remote image references are not enabled")
		}
		b, err := f.Fetch(ctx, ref)
		if err != nil {
			return nil, err
		}
		data = b
	default:
		if st, err := os.Stat(ref); err == nil && !st.IsDir() {
			b, err := os.ReadFile(ref)
			if err != nil {
				return nil, err
			}
			data = b
			break
		}
		b, err := base64.StdEncoding.DecodeString(ref)
		if err != nil {
			return nil, fmt.Errorf("not a data URI, URL, file or base64 image")
		}
		data = b
	}
	return sniffImage(data)
}

func sniffImage(data []byte) (*Image, error) {
	mt := mimetype.Detect(data)
	if !strings.HasPrefix(mt.String(), "image/") {
		return nil, fmt.Errorf("content is %s, not an image", mt.String())
	}
	img := &Image{Data: data, MIMEType: mt.String(), Ext: mt.Extension()}
	if img.Ext == "" {
		img.Ext = ".img"
	}
	if !decodable[img.MIMEType] {
		// ffmpeg reads more formats than Go does; those pass on the sniff.
		return img, nil
	}
	decoded, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%s does not decode: %w", img.MIMEType, err)
	}
	b := decoded.Bounds()
	img.Width, img.Height = b.Dx(), b.Dy()
	return img, nil
}
