package domain

// Track is a named topic profile supplied as configuration. The core reads
// tracks but never mutates them.
type Track struct {
	Name         string
	Keywords     []string
	Phrases      []string
	Exclusions   []string
	Categories   []string
	Threshold    float64
	MaxPerDigest int
	Disabled     bool
}

// AllowsCategories reports whether a paper with the given categories passes
// the track's category filter. An empty filter admits everything.
func (t Track) AllowsCategories(categories []string) bool {
	if len(t.Categories) == 0 {
		return true
	}
	for _, want := range t.Categories {
		for _, have := range categories {
			if want == have {
				return true
			}
		}
	}
	return false
}
