package live

// UserSession is one enabled user's live-trading configuration: the
// markets the tick processes for them, the candle unit to fetch, and
// the decision source (single strategy or aggregator) driving entries.
type UserSession struct {
	UserID  string
	Markets []string
	Unit    int
	Decider Decider
}
