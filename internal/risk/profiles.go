package risk

// Config holds the per-profile risk parameters applied to every trade.
// Immutable during a cycle; the engine re-reads the selected profile from
// bot config at cycle start.
type Config struct {
	Name               string
	MaxPositionPercent float64 // % of balance committed per trade
	MinTradeUSD        float64
	MaxTradeUSD        float64
	StopLossPercent    float64
	TakeProfitPercent  float64
}

// Named risk profiles. Unknown levels fall back to medium.
var profiles = map[string]Config{
	"low": {
		Name:               "low",
		MaxPositionPercent: 10,
		MinTradeUSD:        10,
		MaxTradeUSD:        100,
		StopLossPercent:    2.0,
		TakeProfitPercent:  3.0,
	},
	"medium": {
		Name:               "medium",
		MaxPositionPercent: 20,
		MinTradeUSD:        10,
		MaxTradeUSD:        250,
		StopLossPercent:    3.0,
		TakeProfitPercent:  5.0,
	},
	"high": {
		Name:               "high",
		MaxPositionPercent: 35,
		MinTradeUSD:        10,
		MaxTradeUSD:        500,
		StopLossPercent:    5.0,
		TakeProfitPercent:  8.0,
	},
}

// ProfileForLevel returns the named risk profile
func ProfileForLevel(level string) Config {
	if p, ok := profiles[level]; ok {
		return p
	}
	return profiles["medium"]
}
