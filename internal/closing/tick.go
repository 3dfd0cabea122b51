package closing

import "math"

// TickSize returns the minimum price increment for the given exchange and
// price band. ADX widens ticks with price; DFM keeps a coarser top band.
func TickSize(exchange string, price float64) float64 {
	if exchange == "DFM" {
		switch {
		case price < 1:
			return 0.001
		case price < 10:
			return 0.01
		default:
			return 0.05
		}
	}
	// ADX is the default table.
	switch {
	case price < 1:
		return 0.001
	case price < 10:
		return 0.01
	case price < 50:
		return 0.02
	case price < 100:
		return 0.05
	default:
		return 0.1
	}
}

// RoundToTick rounds price to the nearest multiple of tick.
func RoundToTick(price, tick float64) float64 {
	if tick <= 0 {
		return price
	}
	return math.Round(price/tick) * tick
}
