package sync

import (
	"path"
	"path/filepath"
	"strings"
)

// DevicePath maps a source file to its location on the device: the
// library-relative path re-rooted under the device music root. A source
// outside the library root falls back to Artist/Album/filename derived
// from its directory structure.
func DevicePath(srcPath, libraryPath, musicRoot string) string {
	rel, err := filepath.Rel(libraryPath, srcPath)
	if err != nil || strings.HasPrefix(rel, "..") {
		album := filepath.Base(filepath.Dir(srcPath))
		artist := filepath.Base(filepath.Dir(filepath.Dir(srcPath)))
		rel = filepath.Join(artist, album, filepath.Base(srcPath))
	}
	return path.Join(musicRoot, filepath.ToSlash(rel))
}

// DeviceRelativePath is the device path without the music root, as used
// inside generated playlists.
func DeviceRelativePath(srcPath, libraryPath string) string {
	rel, err := filepath.Rel(libraryPath, srcPath)
	if err != nil || strings.HasPrefix(rel, "..") {
		album := filepath.Base(filepath.Dir(srcPath))
		artist := filepath.Base(filepath.Dir(filepath.Dir(srcPath)))
		rel = filepath.Join(artist, album, filepath.Base(srcPath))
	}
	return filepath.ToSlash(rel)
}
