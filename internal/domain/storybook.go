package domain

import "time"

// Storybook is a finished, immutable generation result owned by one user.
// Pages and Images are index aligned.
type Storybook struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Title     string    `json:"title"`
	Prompt    string    `json:"prompt"`
	ImageURL  string    `json:"image_url,omitempty"`
	Pages     []string  `json:"pages"`
	Images    []string  `json:"images"`
	Seed      int64     `json:"seed"`
	CreatedAt time.Time `json:"created_at"`
}

// Files returns every stored file URL referenced by the storybook.
func (s Storybook) Files() []string {
	files := make([]string, 0, len(s.Images)+1)
	if s.ImageURL != "" {
		files = append(files, s.ImageURL)
	}
	return append(files, s.Images...)
}
