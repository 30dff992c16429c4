package forecast

import (
	"math"
	"sort"

	"landsim/pkg/domain"
)

// Scale rescales targets so they sum to total, keeping proportions. Integer
// rounding uses the largest remainder method; ties go to the lower key so
// the result is deterministic. An empty or all-zero table is returned
// unchanged.
func Scale(targets map[domain.JobKey]int, total int) map[domain.JobKey]int {
	sum := 0
	for _, v := range targets {
		sum += v
	}
	out := make(map[domain.JobKey]int, len(targets))
	if sum == 0 || total < 0 {
		for k, v := range targets {
			out[k] = v
		}
		return out
	}

	type share struct {
		key  domain.JobKey
		frac float64
	}
	shares := make([]share, 0, len(targets))
	assigned := 0
	factor := float64(total) / float64(sum)
	for k, v := range targets {
		exact := float64(v) * factor
		base := math.Floor(exact)
		out[k] = int(base)
		assigned += int(base)
		shares = append(shares, share{key: k, frac: exact - base})
	}
	sort.Slice(shares, func(i, j int) bool {
		if shares[i].frac != shares[j].frac {
			return shares[i].frac > shares[j].frac
		}
		return keyLess(shares[i].key, shares[j].key)
	})
	for i := 0; assigned < total && i < len(shares); i++ {
		out[shares[i].key]++
		assigned++
	}
	return out
}

func keyLess(a, b domain.JobKey) bool {
	if a.Zone != b.Zone {
		return a.Zone < b.Zone
	}
	return a.Type < b.Type
}
