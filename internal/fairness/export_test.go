package fairness

var (
	ValueFromBits = valueFromBits
	RoundOutcome  = roundOutcome
)
