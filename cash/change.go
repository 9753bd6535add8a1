package cash

// ComputeChange splits amount into notes and coins the ledger can pay out.
//
// Bounded greedy: walk the ledger's denominations from largest to smallest
// and take as many of each as both the remaining amount and the stock allow.
// Whatever cannot be represented is returned as shortfall, so
//
//	Σ plan[d]×d + shortfall == amount
//
// always holds. A positive shortfall is not an error; the caller decides
// whether to block the tender or accept a partial payout. With bounded stock
// greedy does not always minimise the shortfall: 60 owed from {50:1, 20:3}
// pays the 50 and leaves 10 short although three 20s would cover it.
// Amounts <= 0 yield an empty plan and no shortfall.
func ComputeChange(amount int64, ledger Counts) (plan Counts, shortfall int64) {
	plan = Counts{}
	if amount <= 0 {
		return plan, 0
	}
	remaining := amount
	for _, d := range ledger.Denominations() {
		if d <= 0 || ledger[d] <= 0 {
			continue
		}
		if remaining >= int64(d) {
			units := min(remaining/int64(d), ledger[d])
			plan[d] = units
			remaining -= units * int64(d)
		}
	}
	return plan, remaining
}
