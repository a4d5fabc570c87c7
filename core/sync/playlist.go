package sync

import (
	"fmt"
	"path"
	"strings"

	"dapsync/model"
)

// playlistsDirName is the directory under the device music root that
// holds generated playlist files.
const playlistsDirName = "Playlists"

// GenerateM3U renders an extended M3U playlist whose entries are device
// paths relative to the music root.
func GenerateM3U(tracks []*model.Track, libraryPath string) string {
	var b strings.Builder
	b.WriteString("#EXTM3U\n")
	for _, track := range tracks {
		title := track.Title
		if title == "" {
			title = path.Base(DeviceRelativePath(track.FilePath, libraryPath))
		}
		artist := track.Artist
		if artist == "" {
			artist = "Unknown Artist"
		}
		fmt.Fprintf(&b, "#EXTINF:%d,%s - %s\n", int(track.Duration), artist, title)
		b.WriteString(DeviceRelativePath(track.FilePath, libraryPath))
		b.WriteByte('\n')
	}
	return b.String()
}

// PlaylistDevicePath is where a playlist file lands on the device.
func PlaylistDevicePath(musicRoot, name string) string {
	return path.Join(musicRoot, playlistsDirName, SanitizeFilename(name)+".m3u")
}

// SanitizeFilename strips characters the device filesystem rejects.
func SanitizeFilename(name string) string {
	for _, c := range `<>:"/\|?*` {
		name = strings.ReplaceAll(name, string(c), "_")
	}
	name = strings.Trim(name, " .")
	if len(name) > 255 {
		name = name[:255]
	}
	return name
}
