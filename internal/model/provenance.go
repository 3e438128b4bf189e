package model

// ProvenanceAttempt is one source's value for a panel cell.
type ProvenanceAttempt struct {
	Source     string     `json:"source"`
	Value      *float64   `json:"value"`
	Confidence Confidence `json:"confidence"`
	Priority   int        `json:"priority"`
}

// Provenance records how a contested panel cell was decided: the winner and
// every value that lost on source priority.
type Provenance struct {
	FirmKey      string              `json:"firm_key"`
	Year         int                 `json:"year"`
	Metric       Metric              `json:"metric"`
	WinnerSource string              `json:"winner_source"`
	WinnerValue  *float64            `json:"winner_value"`
	Discarded    []ProvenanceAttempt `json:"discarded"`
}
