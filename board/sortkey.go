package board

type rankKey struct {
	typ  ThingType
	rank int
}

// Red fives sort between the fours and fives of their suit.
var sortKeys = map[rankKey]float64{
	{Tile, 34}: 3.5,
	{Tile, 35}: 12.5,
	{Tile, 36}: 21.5,
}

// SortKey maps a (type, rank) pair to a total order key. Ranks without an
// entry sort by their own value.
func SortKey(typ ThingType, rank int) float64 {
	if k, ok := sortKeys[rankKey{typ, rank}]; ok {
		return k
	}
	return float64(rank)
}
