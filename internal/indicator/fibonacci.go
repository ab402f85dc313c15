package indicator

// Retracement ratios
const (
	Fib382 = 0.382
	Fib500 = 0.5
	Fib618 = 0.618
)

// FibLevels are retracement prices measured down from the high.
type FibLevels struct {
	L382 float64 `json:"l382"`
	L500 float64 `json:"l500"`
	L618 float64 `json:"l618"`
}

// FibonacciLevels returns high - r*(high-low) for r in {0.382, 0.5, 0.618}.
func FibonacciLevels(high, low float64) FibLevels {
	r := high - low
	return FibLevels{
		L382: high - Fib382*r,
		L500: high - Fib500*r,
		L618: high - Fib618*r,
	}
}

// InZone reports whether price lies in the 0.5-0.382 retracement band.
func (f FibLevels) InZone(price float64) bool {
	return price >= f.L500 && price <= f.L382
}

// InWideZone reports whether price lies below the 0.5 level down to the 0.618 level.
func (f FibLevels) InWideZone(price float64) bool {
	return price >= f.L618 && price < f.L500
}

// InOrderBlock reports whether price lies in the 0.618-0.382 band.
func (f FibLevels) InOrderBlock(price float64) bool {
	return price >= f.L618 && price <= f.L382
}
