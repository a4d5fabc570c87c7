package metadata

import (
	"bytes"
	"image"
	"image/color"
	_ "image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/bogem/id3v2/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// makeMP3 writes a minimal ID3v2-tagged file: a real tag followed by
// stand-in audio bytes, enough for both tag readers used in staging.
func makeMP3(t *testing.T, dir string, artwork []byte) string {
	t.Helper()

	id3 := id3v2.NewEmptyTag()
	id3.SetTitle("Bohemian Rhapsody")
	id3.SetArtist("Queen")
	if artwork != nil {
		id3.AddAttachedPicture(id3v2.PictureFrame{
			Encoding:    id3v2.EncodingUTF8,
			MimeType:    "image/png",
			PictureType: id3v2.PTFrontCover,
			Description: "Cover",
			Picture:     artwork,
		})
	}

	var buf bytes.Buffer
	_, err := id3.WriteTo(&buf)
	require.NoError(t, err)
	buf.Write(bytes.Repeat([]byte{0xFF, 0xFB, 0x90, 0x00}, 256))

	path := filepath.Join(dir, "track.mp3")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0644))
	return path
}

func makePNG(t *testing.T, width, height int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for x := 0; x < width; x++ {
		for y := 0; y < height; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// stagedPicture opens the staged file and returns its cover frame, or nil.
func stagedPicture(t *testing.T, staged string) *id3v2.PictureFrame {
	t.Helper()
	id3, err := id3v2.Open(staged, id3v2.Options{Parse: true})
	require.NoError(t, err)
	defer id3.Close()

	frames := id3.GetFrames(id3.CommonID("Attached picture"))
	if len(frames) == 0 {
		return nil
	}
	pf, ok := frames[0].(id3v2.PictureFrame)
	require.True(t, ok)
	return &pf
}

func TestStageRejectsUnsupportedFormat(t *testing.T) {
	n := NewNormalizer(Policy{PreserveTags: true})
	_, _, _, err := n.Stage(filepath.Join(t.TempDir(), "notes.txt"))
	assert.ErrorIs(t, err, ErrUnreadableSource)
}

func TestStageRejectsMissingFile(t *testing.T) {
	n := NewNormalizer(Policy{PreserveTags: true})
	_, _, _, err := n.Stage(filepath.Join(t.TempDir(), "gone.mp3"))
	assert.ErrorIs(t, err, ErrUnreadableSource)
}

func TestStageRejectsGarbage(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "garbage.flac")
	require.NoError(t, os.WriteFile(path, []byte("this is not audio"), 0644))

	n := NewNormalizer(Policy{PreserveTags: true})
	_, _, _, err := n.Stage(path)
	assert.ErrorIs(t, err, ErrUnreadableSource)
}

func TestStagePassThroughWhenPreserving(t *testing.T) {
	dir := t.TempDir()
	src := makeMP3(t, dir, nil)
	original, err := os.ReadFile(src)
	require.NoError(t, err)

	n := NewNormalizer(Policy{PreserveTags: true, EmbedArtwork: false})
	staged, size, cleanup, err := n.Stage(src)
	require.NoError(t, err)
	defer cleanup()

	got, err := os.ReadFile(staged)
	require.NoError(t, err)
	assert.Equal(t, original, got)
	assert.Equal(t, int64(len(original)), size)
	assert.NotEqual(t, src, staged)
}

func TestStageCleanupRemovesStagedFile(t *testing.T) {
	dir := t.TempDir()
	src := makeMP3(t, dir, nil)

	n := NewNormalizer(Policy{PreserveTags: true})
	staged, _, cleanup, err := n.Stage(src)
	require.NoError(t, err)

	cleanup()
	_, err = os.Stat(staged)
	assert.True(t, os.IsNotExist(err))
}

func TestStageStripsTags(t *testing.T) {
	dir := t.TempDir()
	src := makeMP3(t, dir, nil)

	n := NewNormalizer(Policy{PreserveTags: false, EmbedArtwork: false})
	staged, _, cleanup, err := n.Stage(src)
	require.NoError(t, err)
	defer cleanup()

	id3, err := id3v2.Open(staged, id3v2.Options{Parse: true})
	require.NoError(t, err)
	defer id3.Close()
	assert.Empty(t, id3.Title())
	assert.Empty(t, id3.Artist())

	// The source file itself is untouched.
	srcTag, err := id3v2.Open(src, id3v2.Options{Parse: true})
	require.NoError(t, err)
	defer srcTag.Close()
	assert.Equal(t, "Bohemian Rhapsody", srcTag.Title())
}

func TestStageDownscalesArtwork(t *testing.T) {
	dir := t.TempDir()
	src := makeMP3(t, dir, makePNG(t, 300, 200))

	n := NewNormalizer(Policy{PreserveTags: true, EmbedArtwork: true, ArtworkSize: 100})
	staged, _, cleanup, err := n.Stage(src)
	require.NoError(t, err)
	defer cleanup()

	pic := stagedPicture(t, staged)
	require.NotNil(t, pic)
	assert.Equal(t, "image/jpeg", pic.MimeType)

	img, format, err := image.Decode(bytes.NewReader(pic.Picture))
	require.NoError(t, err)
	assert.Equal(t, "jpeg", format)
	assert.Equal(t, 100, img.Bounds().Dx())
	assert.LessOrEqual(t, img.Bounds().Dy(), 100)
}

func TestStageNeverUpscalesArtwork(t *testing.T) {
	dir := t.TempDir()
	src := makeMP3(t, dir, makePNG(t, 50, 40))

	n := NewNormalizer(Policy{PreserveTags: true, EmbedArtwork: true, ArtworkSize: 100})
	staged, _, cleanup, err := n.Stage(src)
	require.NoError(t, err)
	defer cleanup()

	pic := stagedPicture(t, staged)
	require.NotNil(t, pic)

	img, _, err := image.Decode(bytes.NewReader(pic.Picture))
	require.NoError(t, err)
	assert.Equal(t, 50, img.Bounds().Dx())
	assert.Equal(t, 40, img.Bounds().Dy())
}

func TestStageCorruptArtwork(t *testing.T) {
	dir := t.TempDir()
	src := makeMP3(t, dir, []byte("definitely not an image"))

	n := NewNormalizer(Policy{PreserveTags: true, EmbedArtwork: true, ArtworkSize: 100})
	_, _, _, err := n.Stage(src)
	assert.ErrorIs(t, err, ErrCorruptArtwork)
}

func TestFingerprintStable(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.mp3")
	require.NoError(t, os.WriteFile(path, []byte("content"), 0644))

	fp1, err := Fingerprint(path)
	require.NoError(t, err)
	fp2, err := Fingerprint(path)
	require.NoError(t, err)
	assert.Equal(t, fp1, fp2)
	assert.Len(t, fp1, 16)
}

func TestFingerprintChangesWithContent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.mp3")
	require.NoError(t, os.WriteFile(path, []byte("content"), 0644))

	fp1, err := Fingerprint(path)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte("content grown longer"), 0644))
	fp2, err := Fingerprint(path)
	require.NoError(t, err)
	assert.NotEqual(t, fp1, fp2)
}

func TestFingerprintMissingFile(t *testing.T) {
	_, err := Fingerprint(filepath.Join(t.TempDir(), "gone.mp3"))
	assert.ErrorIs(t, err, ErrUnreadableSource)
}
