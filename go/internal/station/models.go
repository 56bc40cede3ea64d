package station

// Station is a read-only exam station definition. Content authoring and
// storage live outside this service; sessions only need enough of the
// definition to validate creation requests and know which materials a
// room may reveal.
type Station struct {
	ID        string   `yaml:"id" json:"id"`
	Title     string   `yaml:"title" json:"title"`
	Brief     string   `yaml:"brief" json:"brief"`
	Materials []string `yaml:"materials" json:"materials"`
}

// Checklist is a read-only scoring checklist definition.
type Checklist struct {
	ID    string          `yaml:"id" json:"id"`
	Title string          `yaml:"title" json:"title"`
	Items []ChecklistItem `yaml:"items" json:"items"`
}

// ChecklistItem is one scoring criterion; the evaluation itself is
// session state, owned by the session room.
type ChecklistItem struct {
	ID       string  `yaml:"id" json:"id"`
	Label    string  `yaml:"label" json:"label"`
	MaxScore float64 `yaml:"max_score" json:"max_score"`
}
