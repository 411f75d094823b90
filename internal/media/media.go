// Package media holds the byte-level utilities the scan pipeline is built
// on: fingerprinting, image canonicalization and magic-byte sniffing.
package media

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
	"github.com/h2non/filetype"
	"golang.org/x/crypto/blake2b"
)

// Canonical bounds every fingerprinted payload is scaled into.
const (
	canonicalWidth  = 250
	canonicalHeight = 250
)

// Hash returns the Blake2b-512 digest of b, hex encoded lowercase.
func Hash(b []byte) string {
	sum := blake2b.Sum512(b)
	return hex.EncodeToString(sum[:])
}

// Canonicalize decodes an image payload, scales it to fit within 250x250
// preserving the aspect ratio and re-encodes it as PNG. The returned bytes
// are the canonical form used for both fingerprinting and staging, so the
// same logical image keeps one fingerprint across re-encodings.
func Canonicalize(b []byte) ([]byte, error) {
	img, err := imaging.Decode(bytes.NewReader(b))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	img = resizeToFit(img, canonicalWidth, canonicalHeight)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// resizeToFit scales img down into the given bounds. With both bounds set it
// uses nearest-neighbour sampling; with only a width it scales
// proportionally using Lanczos and derives the height.
func resizeToFit(img image.Image, width, height int) image.Image {
	switch {
	case width > 0 && height > 0:
		return imaging.Fit(img, width, height, imaging.NearestNeighbor)
	case width > 0:
		return imaging.Resize(img, width, 0, imaging.Lanczos)
	default:
		return img
	}
}

// SniffExtension reports the staged-file extension for an image payload.
// JPEG and JPEG 2000 fold into "jpg"; anything unrecognized falls back to
// "png".
func SniffExtension(b []byte) string {
	switch {
	case filetype.Is(b, "png"):
		return "png"
	case filetype.Is(b, "jpg"), filetype.Is(b, "jp2"):
		return "jpg"
	case filetype.Is(b, "gif"):
		return "gif"
	case filetype.Is(b, "webp"):
		return "webp"
	}
	return "png"
}

// Kind is the coarse content class of a payload.
type Kind int

const (
	KindUnknown Kind = iota
	KindImage
	KindVideo
	KindAudio
	KindApp
	KindArchive
	KindDocument
	KindFont
)

func (k Kind) String() string {
	switch k {
	case KindImage:
		return "image"
	case KindVideo:
		return "video"
	case KindAudio:
		return "audio"
	case KindApp:
		return "app"
	case KindArchive:
		return "archive"
	case KindDocument:
		return "document"
	case KindFont:
		return "font"
	}
	return "unknown"
}

// SniffKind classifies a payload by magic bytes. Only images are scannable;
// every other recognized kind is answered with 501 on the detect endpoint.
func SniffKind(b []byte) Kind {
	switch {
	case filetype.IsImage(b):
		return KindImage
	case filetype.IsVideo(b):
		return KindVideo
	case filetype.IsAudio(b):
		return KindAudio
	case filetype.IsApplication(b):
		return KindApp
	case filetype.IsArchive(b):
		return KindArchive
	case filetype.IsDocument(b):
		return KindDocument
	case filetype.IsFont(b):
		return KindFont
	}
	return KindUnknown
}
