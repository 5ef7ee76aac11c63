package loaders

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/thefork190/TheFork-sub000/engine/renderer/metadata"
)

// decodeImage decodes any registered image format and converts it to a single mip of RGBA8.
func decodeImage(r io.Reader) (*TextureContainer, error) {
	img, kind, err := image.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", err, ErrInvalidContainer)
	}
	bounds := img.Bounds()
	rgba, ok := img.(*image.RGBA)
	if !ok || rgba.Stride != 4*bounds.Dx() || bounds.Min != (image.Point{}) {
		rgba = image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
		draw.Draw(rgba, rgba.Bounds(), img, bounds.Min, draw.Src)
	}
	desc := metadata.TextureDesc{
		Format:    metadata.TextureFormatRGBA8,
		Width:     uint32(bounds.Dx()),
		Height:    uint32(bounds.Dy()),
		Depth:     1,
		ArraySize: 1,
		MipLevels: 1,
	}
	if err := validateDesc(&desc); err != nil {
		return nil, err
	}
	return &TextureContainer{
		Desc:         desc,
		Reader:       bytes.NewReader(rgba.Pix),
		Order:        SubresourceOrderLayersMajor,
		RowAlignment: 1,
		Kind:         kind,
	}, nil
}
