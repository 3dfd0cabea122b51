package closing

// trendPoint is one continuous-session trade observation used for the entry
// trend filter: hours since the continuous open, and the trade price.
type trendPoint struct {
	hours float64
	price float64
}

// minTrendPoints is the minimum number of observations before a slope is
// considered meaningful.
const minTrendPoints = 10

// trendSlopeBpsPerHour fits a least-squares line through the day's trade
// prices and returns its slope in basis points per hour relative to the mean
// price. Positive slopes are uptrends.
func trendSlopeBpsPerHour(points []trendPoint) float64 {
	if len(points) < minTrendPoints {
		return 0
	}
	n := float64(len(points))
	var sumX, sumY, sumXY, sumX2 float64
	for _, p := range points {
		sumX += p.hours
		sumY += p.price
		sumXY += p.hours * p.price
		sumX2 += p.hours * p.hours
	}
	denom := n*sumX2 - sumX*sumX
	if denom == 0 {
		return 0
	}
	slope := (n*sumXY - sumX*sumY) / denom
	mean := sumY / n
	if mean == 0 {
		return 0
	}
	return slope / mean * 10000
}
