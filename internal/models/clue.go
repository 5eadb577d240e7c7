package models

// Clue is a single playable track. Title is the answer and stays server-side while a round is live.
type Clue struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Game     string `json:"game"`
	Link     string `json:"link"`
	Category string `json:"category"`
	Source   string `json:"source"`
}
