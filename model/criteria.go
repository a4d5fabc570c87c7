package model

// TrackFilter is a predicate over track attributes. All set constraints
// must hold for a track to match (conjunction).
type TrackFilter struct {
	RatingMin int      `yaml:"rating_min"`
	Days      int      `yaml:"days"`
	Genres    []string `yaml:"genres"`
	Artists   []string `yaml:"artists"`
	Albums    []string `yaml:"albums"`
}

// IsZero reports whether no constraint is set.
func (f TrackFilter) IsZero() bool {
	return f.RatingMin == 0 && f.Days == 0 &&
		len(f.Genres) == 0 && len(f.Artists) == 0 && len(f.Albums) == 0
}

// SmartPlaylist materializes its membership from a TrackFilter.
type SmartPlaylist struct {
	Name        string `yaml:"name"`
	TrackFilter `yaml:",inline"`
}

// CriteriaEntry selects one slice of the library. Exactly one selector
// must be set per entry; this is enforced when configuration is loaded.
type CriteriaEntry struct {
	EntireLibrary  bool            `yaml:"entire_library"`
	Playlists      []string        `yaml:"playlists"`
	SmartPlaylists []SmartPlaylist `yaml:"smart_playlists"`
	Custom         *TrackFilter    `yaml:"custom"`
}

// SelectorCount returns how many selectors the entry sets.
func (e CriteriaEntry) SelectorCount() int {
	n := 0
	if e.EntireLibrary {
		n++
	}
	if len(e.Playlists) > 0 {
		n++
	}
	if len(e.SmartPlaylists) > 0 {
		n++
	}
	if e.Custom != nil {
		n++
	}
	return n
}
