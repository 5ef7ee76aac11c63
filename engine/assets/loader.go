package assets

import (
	"bytes"
	"io"
	"io/fs"

	"github.com/thefork190/TheFork-sub000/engine/assets/loaders"
)

// Loader parses one asset type. The returned value depends on the loader.
type Loader interface {
	Load(f fs.File, path string) (interface{}, error)
}

// BinaryLoader returns the file as []uint32 words (SPIR-V and other word streams).
type BinaryLoader struct{}

func (l *BinaryLoader) Load(f fs.File, _ string) (interface{}, error) {
	return loaders.ReadBinary(f)
}

// ImageLoader returns the metadata.TextureDesc described by a texture file.
type ImageLoader struct{}

func (l *ImageLoader) Load(f fs.File, path string) (interface{}, error) {
	r, ok := f.(io.ReadSeeker)
	if !ok {
		data, err := io.ReadAll(f)
		if err != nil {
			return nil, err
		}
		r = bytes.NewReader(data)
	}
	c, err := loaders.OpenTexture(r, path)
	if err != nil {
		return nil, err
	}
	return c.Desc, nil
}

// GeometryLoader returns the *loaders.GeometryData of a binary geometry file.
type GeometryLoader struct{}

func (l *GeometryLoader) Load(f fs.File, _ string) (interface{}, error) {
	return loaders.ReadGeometry(f)
}
