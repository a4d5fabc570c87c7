// Package library reads the exported music library catalog and its
// playlist files into the in-memory index the sync engine resolves
// against.
package library

import (
	"encoding/xml"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"dapsync/logger"
	"dapsync/model"
)

// ErrLibraryUnreadable means the catalog could not be parsed. This is a
// fatal precondition for a sync run.
var ErrLibraryUnreadable = errors.New("library unreadable")

// Reader loads the library catalog XML and the .m3u playlist directory.
type Reader struct {
	xmlPath       string
	playlistsPath string
	libraryPath   string
}

// NewReader creates a library reader.
//   - xmlPath: the exported catalog file
//   - playlistsPath: directory holding .m3u/.m3u8 exports
//   - libraryPath: base directory of the source audio files
func NewReader(xmlPath, playlistsPath, libraryPath string) *Reader {
	return &Reader{
		xmlPath:       xmlPath,
		playlistsPath: playlistsPath,
		libraryPath:   libraryPath,
	}
}

// xmlLibrary mirrors the catalog layout:
//
//	<Library><Items><Item FilePath="..." TrackTitle="..."/></Items></Library>
type xmlLibrary struct {
	XMLName xml.Name   `xml:"Library"`
	Items   []xmlTrack `xml:"Items>Item"`
}

type xmlTrack struct {
	ID           string `xml:"Id,attr"`
	FilePath     string `xml:"FilePath,attr"`
	TrackTitle   string `xml:"TrackTitle,attr"`
	Artist       string `xml:"Artist,attr"`
	AlbumArtist  string `xml:"AlbumArtist,attr"`
	Album        string `xml:"Album,attr"`
	Genre        string `xml:"Genre,attr"`
	Year         string `xml:"Year,attr"`
	TrackNo      string `xml:"TrackNo,attr"`
	DiscNo       string `xml:"DiscNo,attr"`
	Rating       string `xml:"Rating,attr"`
	PlayCount    string `xml:"PlayCount,attr"`
	Duration     string `xml:"Duration,attr"`
	DateAdded    string `xml:"DateAdded,attr"`
	DateModified string `xml:"DateModified,attr"`
}

// Load parses the catalog and playlists. A missing or malformed catalog
// is fatal; a missing playlists directory only logs a warning because
// entire-library and smart criteria still work without it.
func (r *Reader) Load() ([]model.Track, []model.Playlist, error) {
	tracks, byPath, err := r.loadTracks()
	if err != nil {
		return nil, nil, err
	}

	playlists := r.loadPlaylists(byPath)
	return tracks, playlists, nil
}

func (r *Reader) loadTracks() ([]model.Track, map[string]string, error) {
	data, err := os.ReadFile(r.xmlPath)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrLibraryUnreadable, err)
	}

	var lib xmlLibrary
	if err := xml.Unmarshal(data, &lib); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrLibraryUnreadable, err)
	}

	tracks := make([]model.Track, 0, len(lib.Items))
	byPath := make(map[string]string, len(lib.Items)) // normalized path -> track id
	for _, item := range lib.Items {
		if item.FilePath == "" {
			continue
		}
		track := r.toTrack(item)
		if _, dup := byPath[track.FilePath]; dup {
			logger.Warn("duplicate track path in catalog", logger.String("path", track.FilePath))
			continue
		}
		byPath[track.FilePath] = track.ID
		tracks = append(tracks, track)
	}

	logger.Info("loaded library catalog",
		logger.String("path", r.xmlPath),
		logger.Int("tracks", len(tracks)))
	return tracks, byPath, nil
}

func (r *Reader) toTrack(item xmlTrack) model.Track {
	path := normalizePath(item.FilePath)
	if !filepath.IsAbs(path) {
		path = filepath.Join(r.libraryPath, path)
	}
	path = filepath.Clean(path)

	id := item.ID
	if id == "" {
		// The catalog format carries no explicit id; the library-relative
		// path is stable across exports and serves as one.
		id = relativeID(path, r.libraryPath)
	}

	return model.Track{
		ID:           id,
		FilePath:     path,
		Title:        item.TrackTitle,
		Artist:       item.Artist,
		AlbumArtist:  item.AlbumArtist,
		Album:        item.Album,
		Genre:        item.Genre,
		Year:         item.Year,
		TrackNumber:  item.TrackNo,
		DiscNumber:   item.DiscNo,
		Rating:       atoiOr(item.Rating, 0),
		PlayCount:    atoiOr(item.PlayCount, 0),
		Duration:     atofOr(item.Duration, 0),
		DateAdded:    parseTime(item.DateAdded),
		DateModified: parseTime(item.DateModified),
	}
}

// loadPlaylists scans the playlists directory for .m3u/.m3u8 files and
// maps their entries back to track ids through the path index.
func (r *Reader) loadPlaylists(byPath map[string]string) []model.Playlist {
	entries, err := os.ReadDir(r.playlistsPath)
	if err != nil {
		logger.Warn("playlists directory not readable",
			logger.String("path", r.playlistsPath), logger.ErrorField(err))
		return nil
	}

	var playlists []model.Playlist
	for _, entry := range entries {
		name := entry.Name()
		ext := strings.ToLower(filepath.Ext(name))
		if entry.IsDir() || (ext != ".m3u" && ext != ".m3u8") {
			continue
		}

		trackIDs := r.parseM3U(filepath.Join(r.playlistsPath, name), byPath)
		playlists = append(playlists, model.Playlist{
			Name:     strings.TrimSuffix(name, ext),
			Kind:     model.PlaylistStatic,
			TrackIDs: trackIDs,
		})
	}

	logger.Info("loaded playlists",
		logger.String("path", r.playlistsPath),
		logger.Int("playlists", len(playlists)))
	return playlists
}

func (r *Reader) parseM3U(path string, byPath map[string]string) []string {
	data, err := os.ReadFile(path)
	if err != nil {
		logger.Warn("failed to read playlist", logger.String("path", path), logger.ErrorField(err))
		return nil
	}

	var ids []string
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") ||
			strings.HasPrefix(line, "http://") || strings.HasPrefix(line, "https://") {
			continue
		}

		entry := normalizePath(line)
		if !filepath.IsAbs(entry) {
			entry = filepath.Join(r.libraryPath, entry)
		}
		entry = filepath.Clean(entry)

		if id, ok := byPath[entry]; ok {
			ids = append(ids, id)
		} else {
			logger.Debug("playlist entry not in catalog",
				logger.String("playlist", path), logger.String("entry", line))
		}
	}
	return ids
}

// normalizePath converts catalog paths (which may use Windows separators
// and drive letters) to the host convention.
func normalizePath(p string) string {
	if os.PathSeparator != '\\' && strings.Contains(p, `\`) {
		p = strings.ReplaceAll(p, `\`, string(os.PathSeparator))
		if i := strings.Index(p, ":"); i == 1 {
			drive := strings.ToLower(p[:1])
			rest := strings.TrimPrefix(p[i+1:], string(os.PathSeparator))
			p = filepath.Join("/mnt", drive, rest)
		}
	}
	return p
}

// relativeID derives a stable id from the library-relative path.
func relativeID(path, base string) string {
	if rel, err := filepath.Rel(base, path); err == nil && !strings.HasPrefix(rel, "..") {
		return filepath.ToSlash(rel)
	}
	return filepath.ToSlash(path)
}

func atoiOr(s string, fallback int) int {
	if s == "" {
		return fallback
	}
	if v, err := strconv.Atoi(s); err == nil {
		return v
	}
	return fallback
}

func atofOr(s string, fallback float64) float64 {
	if s == "" {
		return fallback
	}
	if v, err := strconv.ParseFloat(s, 64); err == nil {
		return v
	}
	return fallback
}

// parseTime accepts the timestamp layouts seen in catalog exports.
func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, layout := range []string{
		time.RFC3339,
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05",
		"2006-01-02",
		"1/2/2006 3:04:05 PM",
	} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
