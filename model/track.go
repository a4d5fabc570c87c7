package model

import "time"

// Track is an immutable snapshot of one library entry for a single run.
// ID is the stable identifier assigned by the library index; when the
// catalog carries no explicit id the reader derives one from the
// library-relative file path.
type Track struct {
	ID           string
	FilePath     string
	Title        string
	Artist       string
	AlbumArtist  string
	Album        string
	Genre        string
	Year         string
	TrackNumber  string
	DiscNumber   string
	Rating       int
	PlayCount    int
	Duration     float64
	DateAdded    time.Time
	DateModified time.Time

	// Fingerprint is derived from the source file's content state and is
	// used to detect change without re-reading the audio bytes.
	Fingerprint string
}

// PlaylistKind distinguishes explicit playlists from predicate-driven ones.
type PlaylistKind string

const (
	PlaylistStatic PlaylistKind = "static"
	PlaylistSmart  PlaylistKind = "smart"
)

// Playlist is an ordered list of track ids, unique by name within a run.
type Playlist struct {
	Name     string
	Kind     PlaylistKind
	TrackIDs []string
}
