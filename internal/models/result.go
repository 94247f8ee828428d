package models

// Match is a single catalog hit for a query image.
type Match struct {
	Name string `json:"name"`
	// Similarity is the cosine similarity scaled to 0-100, one decimal.
	Similarity float64 `json:"similarity"`
	ImageURL   string  `json:"image_url"`
}

// SearchResponse is the response for a visual search request.
type SearchResponse struct {
	Results   []*Match `json:"results"`
	Best      float64  `json:"best_similarity"`
	QueryTime int64    `json:"query_time_ms"`
}

// NameHit is a catalog entry found by keyword name lookup.
type NameHit struct {
	Name  string  `json:"name"`
	Score float64 `json:"score"`
}
