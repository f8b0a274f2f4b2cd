package media

import (
	"bytes"
	"fmt"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"

	"github.com/nfnt/resize"
)

// AvatarSize bounds both sides of a stored profile picture.
const AvatarSize = 512

// ResizeAvatar downscales a jpeg, png or gif so that it fits in
// AvatarSize×AvatarSize, keeping the aspect ratio and the input format.
// Images that already fit are returned unchanged.
func ResizeAvatar(data []byte, mime string) ([]byte, error) {
	mime = normalizeMime(mime)

	img, err := decodeImage(mime, data)
	if err != nil {
		return nil, err
	}

	b := img.Bounds()
	if b.Dx() <= AvatarSize && b.Dy() <= AvatarSize {
		return data, nil
	}

	thumb := resize.Thumbnail(AvatarSize, AvatarSize, img, resize.Lanczos2)
	return encodeImage(mime, thumb)
}

func decodeImage(mime string, data []byte) (image.Image, error) {
	r := bytes.NewReader(data)
	var (
		img image.Image
		err error
	)
	switch mime {
	case "image/jpeg":
		img, err = jpeg.Decode(r)
	case "image/png":
		img, err = png.Decode(r)
	case "image/gif":
		img, err = gif.Decode(r)
	default:
		return nil, fmt.Errorf("media: cannot decode %s, only jpeg, png or gif", mime)
	}
	if err != nil {
		return nil, fmt.Errorf("media: decoding %s: %w", mime, err)
	}
	return img, nil
}

func encodeImage(mime string, img image.Image) ([]byte, error) {
	buf := new(bytes.Buffer)

	var err error
	switch mime {
	case "image/jpeg":
		err = jpeg.Encode(buf, img, &jpeg.Options{Quality: 90})
	case "image/png":
		err = png.Encode(buf, img)
	case "image/gif":
		err = gif.Encode(buf, img, nil)
	default:
		return nil, fmt.Errorf("media: cannot encode %s", mime)
	}
	if err != nil {
		return nil, fmt.Errorf("media: encoding %s: %w", mime, err)
	}
	return buf.Bytes(), nil
}
