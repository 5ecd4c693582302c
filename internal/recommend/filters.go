package recommend

import "slices"

// Genres are the genre choices offered by the filter form.
var Genres = []string{"Pop", "Rock", "Hip-Hop", "Jazz", "Classical", "Electronic", "R&B", "Metal", "Country", "Reggae"}

// Moods are the mood choices offered by the filter form.
var Moods = []string{"Happy", "Sad", "Energetic", "Relaxed", "Romantic", "Angry", "Focused", "Nostalgic"}

// KnownGenre reports whether g is empty or one of Genres.
func KnownGenre(g string) bool {
	return g == "" || slices.Contains(Genres, g)
}

// KnownMood reports whether m is empty or one of Moods.
func KnownMood(m string) bool {
	return m == "" || slices.Contains(Moods, m)
}
