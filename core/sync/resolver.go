// Package sync implements the device synchronization engine: resolving
// selection criteria against the library index, diffing the result
// against recorded device state, and executing the transfer plan.
package sync

import (
	"errors"
	"strings"
	"time"

	"dapsync/logger"
	"dapsync/model"
)

// ErrUnknownPlaylist means a criteria entry named a playlist the index
// does not contain. The entry is skipped; the run continues.
var ErrUnknownPlaylist = errors.New("unknown playlist")

// Index is the per-run snapshot of the library the resolver works on.
type Index struct {
	tracks    map[string]*model.Track
	order     []string // catalog discovery order of track ids
	playlists map[string]*model.Playlist
}

// NewIndex builds an index from the reader's output.
func NewIndex(tracks []model.Track, playlists []model.Playlist) *Index {
	idx := &Index{
		tracks:    make(map[string]*model.Track, len(tracks)),
		order:     make([]string, 0, len(tracks)),
		playlists: make(map[string]*model.Playlist, len(playlists)),
	}
	for i := range tracks {
		t := &tracks[i]
		idx.tracks[t.ID] = t
		idx.order = append(idx.order, t.ID)
	}
	for i := range playlists {
		p := &playlists[i]
		idx.playlists[p.Name] = p
	}
	return idx
}

// Track returns the track for an id, or nil.
func (idx *Index) Track(id string) *model.Track {
	return idx.tracks[id]
}

// Playlist returns the playlist for a name, or nil.
func (idx *Index) Playlist(name string) *model.Playlist {
	return idx.playlists[name]
}

// Playlists returns all playlists in the index.
func (idx *Index) Playlists() []*model.Playlist {
	out := make([]*model.Playlist, 0, len(idx.playlists))
	for _, p := range idx.playlists {
		out = append(out, p)
	}
	return out
}

// Resolver turns a criteria set into a concrete target track set.
type Resolver struct {
	// now is the clock used by recency predicates; overridable in tests.
	now func() time.Time
}

// NewResolver creates a resolver using the wall clock.
func NewResolver() *Resolver {
	return &Resolver{now: time.Now}
}

// Resolve evaluates each criteria entry independently and unions the
// results, deduplicated by track id in first-selection order. Any one
// entry selecting a track is sufficient. A bad entry (unknown playlist)
// is logged and skipped; it never aborts resolution.
func (r *Resolver) Resolve(idx *Index, criteria []model.CriteriaEntry) []*model.Track {
	seen := make(map[string]bool)
	var resolved []*model.Track

	add := func(id string) {
		if seen[id] {
			return
		}
		if track := idx.Track(id); track != nil {
			seen[id] = true
			resolved = append(resolved, track)
		}
	}

	for i, entry := range criteria {
		if entry.EntireLibrary {
			for _, id := range idx.order {
				add(id)
			}
		}

		for _, name := range entry.Playlists {
			playlist := idx.Playlist(name)
			if playlist == nil {
				logger.Warn("criteria entry names unknown playlist, skipping",
					logger.Int("entry", i),
					logger.String("playlist", name),
					logger.ErrorField(ErrUnknownPlaylist))
				continue
			}
			for _, id := range playlist.TrackIDs {
				add(id)
			}
		}

		for _, sp := range entry.SmartPlaylists {
			r.addMatching(idx, sp.TrackFilter, add)
		}

		if entry.Custom != nil {
			r.addMatching(idx, *entry.Custom, add)
		}
	}

	logger.Info("resolved selection criteria",
		logger.Int("entries", len(criteria)),
		logger.Int("tracks", len(resolved)))
	return resolved
}

func (r *Resolver) addMatching(idx *Index, filter model.TrackFilter, add func(string)) {
	for _, id := range idx.order {
		if matchesFilter(idx.Track(id), filter, r.now()) {
			add(id)
		}
	}
}

// matchesFilter evaluates a filter against one track. All set constraints
// must hold: constraints within one filter combine with AND.
func matchesFilter(track *model.Track, filter model.TrackFilter, now time.Time) bool {
	if filter.RatingMin > 0 && track.Rating < filter.RatingMin {
		return false
	}
	if filter.Days > 0 {
		cutoff := now.AddDate(0, 0, -filter.Days)
		if track.DateAdded.IsZero() || track.DateAdded.Before(cutoff) {
			return false
		}
	}
	if len(filter.Genres) > 0 && !containsAny(track.Genre, filter.Genres) {
		return false
	}
	if len(filter.Artists) > 0 && !containsAny(track.Artist, filter.Artists) {
		return false
	}
	if len(filter.Albums) > 0 && !containsAny(track.Album, filter.Albums) {
		return false
	}
	return true
}

// containsAny reports whether the value contains any of the wanted
// strings, case-insensitively.
func containsAny(value string, wanted []string) bool {
	value = strings.ToLower(value)
	for _, w := range wanted {
		if strings.Contains(value, strings.ToLower(w)) {
			return true
		}
	}
	return false
}
