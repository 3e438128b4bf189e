package model

// Result is one regression coefficient row.
type Result struct {
	Spec     string  `json:"spec"`
	Metric   Metric  `json:"metric"`
	Term     string  `json:"term"`
	Coef     float64 `json:"coef"`
	StdErr   float64 `json:"std_err"`
	TStat    float64 `json:"t_stat"`
	PValue   float64 `json:"p_value"`
	N        int     `json:"n"`
	Dropped  int     `json:"dropped"`
	Clusters int     `json:"clusters,omitempty"`
	RSquared float64 `json:"r_squared"`
	SEType   string  `json:"se_type"`
	Cutoff   int     `json:"post_start_year"`
}

// Stars returns the conventional significance marker for p.
func Stars(p float64) string {
	switch {
	case p < 0.01:
		return "***"
	case p < 0.05:
		return "**"
	case p < 0.10:
		return "*"
	default:
		return ""
	}
}
