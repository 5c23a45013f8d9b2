package models

// Source is a citation for an answer. Page carries the chunk index and is null
// when the index returned no metadata for the match.
type Source struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Page    *int   `json:"page"`
	Snippet string `json:"snippet"`
}

// ChatAnswer is a grounded answer and the sources consulted for it.
// Sources is always non-nil so it encodes as [] when empty.
type ChatAnswer struct {
	Answer  string   `json:"answer"`
	Sources []Source `json:"sources"`
}

// NewChatAnswer returns an answer with an empty, non-nil source list.
func NewChatAnswer(answer string) *ChatAnswer {
	return &ChatAnswer{Answer: answer, Sources: []Source{}}
}
