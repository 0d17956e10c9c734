package domain

// BestOffer is the cheapest pending claim on a task.
type BestOffer struct {
	Fee float64 `json:"fee"`
	// HelperRating is nil when the helper has no rating recorded.
	HelperRating *float64 `json:"helperRating"`
}

// ClaimSummary is the live pending-claims snapshot for one task.
// BestOffer is nil exactly when CountPending is zero.
type ClaimSummary struct {
	CountPending int        `json:"countPending"`
	BestOffer    *BestOffer `json:"bestOffer"`
}

// EmptyClaimSummary is the summary of a task without pending claims.
func EmptyClaimSummary() *ClaimSummary {
	return &ClaimSummary{}
}
