// Package recommender is the recommendation backend service: it turns
// listening context into a chat-model prompt and parses the model's track list.
package recommender

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/justestif/soundify/internal/backend"
	"github.com/justestif/soundify/internal/history"
)

// SuggestionCount is how many tracks every prompt asks for.
const SuggestionCount = 20

// ErrNoJSONArray is returned when a completion holds no bracketed array.
var ErrNoJSONArray = errors.New("completion contains no JSON array")

const outputFormat = `[
    {"track_name": "Song 1", "artist_name": "Artist 1", "genre": "Genre 1"},
    {"track_name": "Song 2", "artist_name": "Artist 2", "genre": "Genre 2"},
    ...
    {"track_name": "Song 20", "artist_name": "Artist 20", "genre": "Genre 20"}
]`

// BaselinePrompt asks for tracks similar to the history at the given time of day.
func BaselinePrompt(tod history.Bucket, entries []history.Entry) string {
	var b strings.Builder
	b.WriteString("You are a music recommendation expert. You specialize in creating personalized song suggestions ")
	b.WriteString("based on a user's preferences, listening habits, and the context of the time of day. ")
	b.WriteString("Here is some information about the user:\n\n")
	fmt.Fprintf(&b, "Time of day: %s\n", tod)
	b.WriteString("Listening history:\n")
	writeHistory(&b, entries)

	b.WriteString("\nYour task:\n")
	fmt.Fprintf(&b, "1. Suggest %d songs similar to the user's listening history.\n", SuggestionCount)
	b.WriteString("2. Recommendations should be JSON formatted with the following keys:\n")
	b.WriteString("    - \"track_name\": Name of the track\n")
	b.WriteString("    - \"artist_name\": Name of the artist\n")
	b.WriteString("    - \"genre\": Genre of the song\n\n")
	b.WriteString("Be creative, ensure that the suggestions are diverse and cater to the user's likely preferences ")
	b.WriteString("based on the provided listening history. Here is the desired JSON output:\n")
	b.WriteString(outputFormat)
	b.WriteString("\n")
	return b.String()
}

// FilteredPrompt is BaselinePrompt tailored by genre and mood. Empty
// preferences are left out of the prompt.
func FilteredPrompt(tod history.Bucket, entries []history.Entry, genre, mood string) string {
	var b strings.Builder
	b.WriteString("You are a music recommendation expert specializing in personalized suggestions. ")
	b.WriteString("Your task is to curate a list of songs tailored to this user. ")
	b.WriteString("Here is the information about the user:\n\n")
	fmt.Fprintf(&b, "Time of day: %s\n", tod)
	if genre != "" {
		fmt.Fprintf(&b, "Preferred genre: %s\n", genre)
	}
	if mood != "" {
		fmt.Fprintf(&b, "Current mood: %s\n", mood)
	}
	b.WriteString("Listening history:\n")
	writeHistory(&b, entries)

	b.WriteString("\nYour task:\n")
	fmt.Fprintf(&b, "1. Suggest %d songs that align with the user's preferences, listening history, and the time of day.\n", SuggestionCount)
	b.WriteString("2. If the user's genre and mood preferences are provided, tailor the recommendations accordingly.\n")
	b.WriteString("3. Ensure the recommendations cover a diversity of songs while relating to the user's listening history.\n\n")
	b.WriteString("Output format:\nReturn the recommendations in JSON format structured as follows:\n")
	b.WriteString(outputFormat)
	b.WriteString("\n\nGenerate recommendations creatively and ensure the response complies with the JSON format.\n\n")
	b.WriteString("Recommendations JSON:\n")
	return b.String()
}

// SearchPrompt asks for tracks matching a free-text query.
func SearchPrompt(query string) string {
	var b strings.Builder
	b.WriteString("You are a music recommendation expert specializing in search-based results. ")
	fmt.Fprintf(&b, "A user has provided the following query: '%s'.\n\n", query)
	b.WriteString("Your task:\n")
	fmt.Fprintf(&b, "1. Understand the user's request and provide %d relevant song recommendations.\n", SuggestionCount)
	b.WriteString("2. Ensure recommendations align closely with the user's query (e.g., genre, mood, theme).\n")
	b.WriteString("3. Be creative and diversify the recommendations as appropriate for the query.\n\n")
	b.WriteString("Output format:\nReturn the recommendations as a JSON array structured with the following keys:\n")
	b.WriteString(`[
    {"track_name": "Song Title", "artist_name": "Artist Name", "genre": "Genre (optional)"},
    ...
    {"track_name": "Song Title 20", "artist_name": "Artist Name 20", "genre": "Genre (optional)"}
]`)
	b.WriteString("\n\nEnsure the JSON output is valid and strictly follows the specified structure.\n\n")
	b.WriteString("Recommendations JSON:\n")
	return b.String()
}

func writeHistory(b *strings.Builder, entries []history.Entry) {
	for _, e := range entries {
		fmt.Fprintf(b, "- %s by %s\n", e.TrackName, e.ArtistName)
	}
}

// ExtractJSON returns the substring from the first '[' to the last ']'.
func ExtractJSON(content string) (string, error) {
	start := strings.Index(content, "[")
	end := strings.LastIndex(content, "]")
	if start < 0 || end < start {
		return "", ErrNoJSONArray
	}
	return content[start : end+1], nil
}

// ParseTracks extracts and decodes the track list from a completion.
func ParseTracks(content string) ([]backend.Track, error) {
	raw, err := ExtractJSON(content)
	if err != nil {
		return nil, err
	}
	var tracks []backend.Track
	if err := json.Unmarshal([]byte(raw), &tracks); err != nil {
		return nil, fmt.Errorf("decoding recommendations: %w", err)
	}
	if tracks == nil {
		tracks = []backend.Track{}
	}
	return tracks, nil
}
