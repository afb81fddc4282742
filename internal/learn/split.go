package learn

import (
	"math"
	"math/rand/v2"
	"sort"
)

// Split holds row indexes for the train and validation partitions.
type Split struct {
	Train      []int
	Validation []int
	Stratified bool
}

// StratifiedSplit shuffles row indexes with a seeded PCG source and holds
// out ceil(testSize*n) of them, allocating the held-out rows to each class
// in proportion to its size. When a class has fewer than two members the
// split falls back to a plain shuffled split. Fewer than two rows all go to
// training. Index slices are returned sorted.
func StratifiedSplit(labels []int, testSize float64, seed uint64) Split {
	n := len(labels)
	if n < 2 || testSize <= 0 {
		return Split{Train: seq(n)}
	}
	nTest := int(math.Ceil(testSize * float64(n)))
	if nTest >= n {
		nTest = n - 1
	}
	rng := rand.New(rand.NewPCG(seed, seed))

	byClass := map[int][]int{}
	for i, y := range labels {
		byClass[y] = append(byClass[y], i)
	}
	classes := make([]int, 0, len(byClass))
	stratify := len(byClass) > 1
	for c, idx := range byClass {
		classes = append(classes, c)
		if len(idx) < 2 {
			stratify = false
		}
	}
	sort.Ints(classes)

	if !stratify {
		perm := seq(n)
		rng.Shuffle(n, func(i, j int) { perm[i], perm[j] = perm[j], perm[i] })
		return finish(perm[nTest:], perm[:nTest], false)
	}

	alloc := allocate(classes, byClass, nTest, n)
	var train, val []int
	for _, c := range classes {
		idx := append([]int(nil), byClass[c]...)
		rng.Shuffle(len(idx), func(i, j int) { idx[i], idx[j] = idx[j], idx[i] })
		val = append(val, idx[:alloc[c]]...)
		train = append(train, idx[alloc[c]:]...)
	}
	return finish(train, val, true)
}

// allocate distributes nTest held-out rows over classes by largest
// remainder, keeping at least one training row per class.
func allocate(classes []int, byClass map[int][]int, nTest, n int) map[int]int {
	type share struct {
		class int
		frac  float64
	}
	alloc := make(map[int]int, len(classes))
	shares := make([]share, 0, len(classes))
	used := 0
	for _, c := range classes {
		exact := float64(nTest) * float64(len(byClass[c])) / float64(n)
		alloc[c] = int(math.Floor(exact))
		used += alloc[c]
		shares = append(shares, share{c, exact - math.Floor(exact)})
	}
	sort.SliceStable(shares, func(i, j int) bool { return shares[i].frac > shares[j].frac })
	for i := 0; used < nTest && i < len(shares)*2; i++ {
		c := shares[i%len(shares)].class
		if alloc[c] < len(byClass[c])-1 {
			alloc[c]++
			used++
		}
	}
	return alloc
}

func finish(train, val []int, stratified bool) Split {
	sort.Ints(train)
	sort.Ints(val)
	return Split{Train: train, Validation: val, Stratified: stratified}
}

func seq(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}
