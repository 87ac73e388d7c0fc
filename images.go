package pubsync

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/labstack/echo/v4"
	"golang.org/x/image/draw"
)

const (
	maxImageWidth = 1200
	jpegQuality   = 80
	maxUploadSize = 10 << 20 // 10MB
)

// UploadedImage is the response body of an image upload.
type UploadedImage struct {
	ImageURL  string `json:"imageUrl"`
	ImagePath string `json:"imagePath"`
}

// processImage decodes an image from src, scales it down to maxImageWidth
// when wider, and re-encodes it as JPEG.
func processImage(src io.Reader) ([]byte, image.Rectangle, error) {
	img, _, err := image.Decode(src)
	if err != nil {
		return nil, image.Rectangle{}, fmt.Errorf("decode image: %w", err)
	}

	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w > maxImageWidth {
		newH := h * maxImageWidth / w
		dst := image.NewRGBA(image.Rect(0, 0, maxImageWidth, newH))
		draw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, draw.Over, nil)
		img = dst
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, image.Rectangle{}, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), img.Bounds(), nil
}

// imageFilename converts an uploaded file name to a URL-safe .jpg name.
func imageFilename(name string) string {
	base := Slugify(strings.TrimSuffix(name, filepath.Ext(name)))
	if base == "" {
		base = "image"
	}
	return base + ".jpg"
}

// uniqueFilename appends a counter until the store has no image of that name.
func (a *App) uniqueFilename(ctx context.Context, name string) string {
	base := strings.TrimSuffix(name, ".jpg")
	candidate := name
	for counter := 2; a.Images.Exists(ctx, candidate); counter++ {
		candidate = fmt.Sprintf("%s-%d.jpg", base, counter)
	}
	return candidate
}

func (a *App) handleImageUpload(c echo.Context) error {
	file, err := c.FormFile("images")
	if err != nil {
		return jsonMessage(c, http.StatusBadRequest, "No file uploaded")
	}
	if file.Size > maxUploadSize {
		return jsonMessage(c, http.StatusBadRequest, "File too large (max 10MB)")
	}

	src, err := file.Open()
	if err != nil {
		return err
	}
	defer src.Close()

	data, bounds, err := processImage(src)
	if err != nil {
		return jsonMessage(c, http.StatusBadRequest, "Invalid image: "+err.Error())
	}

	ctx := c.Request().Context()
	name := a.uniqueFilename(ctx, imageFilename(file.Filename))
	location, err := a.Images.Put(ctx, name, data, "image/jpeg")
	if err != nil {
		return fmt.Errorf("store image: %w", err)
	}
	a.Log.Info().Str("image", name).Int("width", bounds.Dx()).Int("height", bounds.Dy()).Msg("image uploaded")

	out := UploadedImage{ImageURL: location, ImagePath: location}
	if !strings.HasPrefix(location, "http://") && !strings.HasPrefix(location, "https://") {
		out.ImageURL = c.Scheme() + "://" + c.Request().Host + location
	}
	return c.JSON(http.StatusOK, out)
}
