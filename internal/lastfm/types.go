package lastfm

// Tag is a Last.fm tag. Count is only present on track tags.
type Tag struct {
	Name  string `json:"name"`
	Count int    `json:"count,omitempty"`
}

type topTags struct {
	TopTags struct {
		Tag []Tag `json:"tag"`
	} `json:"toptags"`
}

// apiError represents a Last.fm API error response.
type apiError struct {
	Error   int    `json:"error"`
	Message string `json:"message"`
}
