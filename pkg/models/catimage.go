package models

// CatImage is a candidate image as returned by the upstream catalog API.
// It is transient: the fetch pipeline maps accepted images into Cat records.
type CatImage struct {
	ID     string  `json:"id"`
	URL    string  `json:"url"`
	Width  int     `json:"width"`
	Height int     `json:"height"`
	Breeds []Breed `json:"breeds,omitempty"`
}

// Breed carries the free-text metadata tags are derived from.
type Breed struct {
	Name        string `json:"name"`
	Temperament string `json:"temperament"`
}
