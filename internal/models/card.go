package models

import "strconv"

// Yoto playlist document types, JSON-tagged to match the API wire format.
// A card holds chapters; a chapter holds one or more tracks.

// Track is a single audio track inside a chapter.
type Track struct {
	Key      string  `json:"key"`
	Title    string  `json:"title"`
	TrackURL string  `json:"trackUrl"`
	Type     string  `json:"type"`
	Format   string  `json:"format,omitempty"`
	Duration float64 `json:"duration,omitempty"`
}

// Chapter groups tracks inside a card.
type Chapter struct {
	Key    string  `json:"key"`
	Title  string  `json:"title"`
	Tracks []Track `json:"tracks"`
}

// CardContent is the chapter list of a card.
type CardContent struct {
	Chapters []Chapter `json:"chapters"`
}

// Card is a Yoto playlist document.
type Card struct {
	CardID  string       `json:"cardId,omitempty"`
	Title   string       `json:"title,omitempty"`
	Content *CardContent `json:"content,omitempty"`
}

// EnsureContent initializes the content and chapter list if absent.
func (c *Card) EnsureContent() {
	if c.Content == nil {
		c.Content = &CardContent{}
	}
	if c.Content.Chapters == nil {
		c.Content.Chapters = []Chapter{}
	}
}

// NextChapterKey returns the first non-negative integer key not used by any
// existing chapter, as a decimal string.
func (c *Card) NextChapterKey() string {
	used := map[string]bool{}
	if c.Content != nil {
		for _, ch := range c.Content.Chapters {
			used[ch.Key] = true
		}
	}
	key := 0
	for used[strconv.Itoa(key)] {
		key++
	}
	return strconv.Itoa(key)
}
