// Package metadata prepares source audio files for transfer: tag
// preservation or stripping, artwork downscaling and embedding, and
// content fingerprinting.
package metadata

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/bogem/id3v2/v2"
	"github.com/dhowden/tag"
	"github.com/disintegration/imaging"

	"dapsync/logger"
)

var (
	// ErrUnreadableSource means the source file cannot be parsed as audio.
	// The entry is marked failed; the run continues.
	ErrUnreadableSource = errors.New("unreadable source")
	// ErrCorruptArtwork means embedded artwork exists but cannot be
	// decoded. The entry is marked failed; the run continues.
	ErrCorruptArtwork = errors.New("corrupt artwork")
)

// supportedExts are the audio container extensions the normalizer accepts.
var supportedExts = map[string]bool{
	".mp3": true, ".flac": true, ".m4a": true, ".aac": true,
	".ogg": true, ".opus": true, ".wma": true,
}

// Policy controls how a source file is rewritten for transfer.
type Policy struct {
	// PreserveTags keeps the source tags verbatim. When false the ID3 tag
	// is stripped from the staged copy.
	PreserveTags bool
	// EmbedArtwork re-embeds the front cover, downscaled to ArtworkSize.
	EmbedArtwork bool
	// ArtworkSize caps the longer edge of embedded artwork in pixels.
	// Artwork already within the cap is never upscaled.
	ArtworkSize int
}

// Normalizer stages transfer-ready copies of source files.
type Normalizer struct {
	policy Policy
}

// NewNormalizer creates a normalizer with the given policy.
func NewNormalizer(policy Policy) *Normalizer {
	return &Normalizer{policy: policy}
}

// Stage writes the byte stream to transfer for srcPath into a temporary
// file and returns its path, its size, and a cleanup function. Tag and
// artwork rewriting is applied to ID3 containers; other supported formats
// pass through unchanged.
func (n *Normalizer) Stage(srcPath string) (string, int64, func(), error) {
	ext := strings.ToLower(filepath.Ext(srcPath))
	if !supportedExts[ext] {
		return "", 0, nil, fmt.Errorf("%w: unsupported format %s", ErrUnreadableSource, ext)
	}

	src, err := os.Open(srcPath)
	if err != nil {
		return "", 0, nil, fmt.Errorf("%w: %v", ErrUnreadableSource, err)
	}
	defer src.Close()

	meta, err := tag.ReadFrom(src)
	if err != nil {
		return "", 0, nil, fmt.Errorf("%w: %s: %v", ErrUnreadableSource, srcPath, err)
	}
	if _, err := src.Seek(0, io.SeekStart); err != nil {
		return "", 0, nil, fmt.Errorf("%w: %v", ErrUnreadableSource, err)
	}

	tempDir, err := os.MkdirTemp("", "dapsync-stage-")
	if err != nil {
		return "", 0, nil, fmt.Errorf("failed to create staging directory: %w", err)
	}
	cleanup := func() { os.RemoveAll(tempDir) }

	staged := filepath.Join(tempDir, filepath.Base(srcPath))
	if err := copyFile(src, staged); err != nil {
		cleanup()
		return "", 0, nil, fmt.Errorf("failed to stage %s: %w", srcPath, err)
	}

	// Tag rewriting is only implemented for ID3 containers; everything
	// else ships the source bytes as-is with its native tags.
	if ext == ".mp3" {
		if err := n.rewriteID3(staged, meta); err != nil {
			cleanup()
			return "", 0, nil, err
		}
	}

	info, err := os.Stat(staged)
	if err != nil {
		cleanup()
		return "", 0, nil, fmt.Errorf("failed to stat staged file: %w", err)
	}
	return staged, info.Size(), cleanup, nil
}

// rewriteID3 applies the tag policy to a staged ID3 file.
func (n *Normalizer) rewriteID3(staged string, meta tag.Metadata) error {
	if n.policy.PreserveTags && !n.policy.EmbedArtwork {
		return nil
	}

	id3, err := id3v2.Open(staged, id3v2.Options{Parse: true})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnreadableSource, err)
	}
	defer id3.Close()

	if !n.policy.PreserveTags {
		id3.DeleteAllFrames()
	}

	if n.policy.EmbedArtwork {
		pic := meta.Picture()
		if pic != nil {
			artwork, err := n.normalizeArtwork(pic.Data)
			if err != nil {
				return err
			}
			id3.DeleteFrames("APIC")
			id3.AddAttachedPicture(id3v2.PictureFrame{
				Encoding:    id3v2.EncodingUTF8,
				MimeType:    "image/jpeg",
				PictureType: id3v2.PTFrontCover,
				Description: "Cover",
				Picture:     artwork,
			})
		}
	}

	if err := id3.Save(); err != nil {
		return fmt.Errorf("failed to rewrite tags in %s: %w", staged, err)
	}
	return nil
}

// normalizeArtwork decodes the cover image, downscales it so the longer
// edge fits the policy cap (never upscaling), and re-encodes it as JPEG.
func (n *Normalizer) normalizeArtwork(data []byte) ([]byte, error) {
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptArtwork, err)
	}

	bounds := img.Bounds()
	longer := bounds.Dx()
	if bounds.Dy() > longer {
		longer = bounds.Dy()
	}
	if longer > n.policy.ArtworkSize {
		img = imaging.Fit(img, n.policy.ArtworkSize, n.policy.ArtworkSize, imaging.Lanczos)
		logger.Debug("downscaled artwork",
			logger.Int("from", longer),
			logger.Int("to", maxEdge(img)))
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(95)); err != nil {
		return nil, fmt.Errorf("%w: re-encode: %v", ErrCorruptArtwork, err)
	}
	return buf.Bytes(), nil
}

func maxEdge(img image.Image) int {
	b := img.Bounds()
	if b.Dx() > b.Dy() {
		return b.Dx()
	}
	return b.Dy()
}

func copyFile(src io.Reader, dst string) error {
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()
	if _, err := io.Copy(out, src); err != nil {
		return err
	}
	return out.Sync()
}
