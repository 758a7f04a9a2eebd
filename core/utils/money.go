package utils

// SplitCommission divides gross minor units into the platform commission and
// the instructor's net. The commission is rounded half up from basis points,
// and net is whatever remains, so commission+net always equals gross.
func SplitCommission(grossCents, rateBps int64) (commission, net int64) {
	if grossCents <= 0 || rateBps <= 0 {
		return 0, grossCents
	}
	commission = (grossCents*rateBps + 5000) / 10000
	return commission, grossCents - commission
}
