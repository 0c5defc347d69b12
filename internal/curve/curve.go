package curve

import "sort"

// Point is a single step on a fan curve: a temperature in Celsius and the
// fan speed in percent to apply at that temperature.
type Point struct {
	Temperature float64
	Speed       float64
}

// FromPairs converts [temperature, speed] pairs into curve points.
// Pairs of the wrong length are skipped.
func FromPairs(pairs [][]float64) []Point {
	points := make([]Point, 0, len(pairs))
	for _, pair := range pairs {
		if len(pair) != 2 {
			continue
		}
		points = append(points, Point{Temperature: pair[0], Speed: pair[1]})
	}

	return points
}

// Evaluate maps a temperature to a fan speed by piecewise linear
// interpolation over the given points. Temperatures outside the curve clamp
// to the first or last point. A single point yields a constant speed, and an
// empty curve yields 0.
func Evaluate(temperature float64, points []Point) float64 {
	if len(points) == 0 {
		return 0
	}

	sorted := make([]Point, len(points))
	copy(sorted, points)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Temperature < sorted[j].Temperature
	})

	if temperature <= sorted[0].Temperature {
		return sorted[0].Speed
	}

	lastIdx := len(sorted) - 1
	if temperature >= sorted[lastIdx].Temperature {
		return sorted[lastIdx].Speed
	}

	for i := 0; i < lastIdx; i++ {
		next := sorted[i+1]
		if temperature > next.Temperature {
			continue
		}
		curr := sorted[i]
		slope := (next.Speed - curr.Speed) / (next.Temperature - curr.Temperature)

		return curr.Speed + slope*(temperature-curr.Temperature)
	}

	return sorted[lastIdx].Speed
}
