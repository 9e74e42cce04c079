package domain

// DayStats aggregates the ratings recorded on one calendar day, keyed by
// date in the configured day-boundary location. NewCards counts ratings
// applied to cards that were still in the New state.
type DayStats struct {
	Again    int `json:"again"`
	Hard     int `json:"hard"`
	Good     int `json:"good"`
	Easy     int `json:"easy"`
	NewCards int `json:"newCards"`
}

// Total is the number of reviews recorded for the day.
func (d DayStats) Total() int {
	return d.Again + d.Hard + d.Good + d.Easy
}
