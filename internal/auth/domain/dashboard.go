package domain

// Dashboard is a labelled numeric series, one value per label.
type Dashboard struct {
	Labels []string
	Values []int
}
