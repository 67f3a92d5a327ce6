// Package options formats and parses NSE option contract symbols and
// selects strikes for signal-driven entries.
package options

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"emaOptionsBot/internal/domain"
)

// indexAliases maps common shorthand names to full data symbols.
var indexAliases = map[string]string{
	"NIFTY":     "NSE:NIFTY50-INDEX",
	"NIFTY50":   "NSE:NIFTY50-INDEX",
	"BANKNIFTY": "NSE:NIFTYBANK-INDEX",
	"NIFTYBANK": "NSE:NIFTYBANK-INDEX",
	"FINNIFTY":  "NSE:FINNIFTY-INDEX",
}

// contractPattern matches UNDERLYING + EXPIRY (e.g. 25AUG) + STRIKE + CE/PE.
var contractPattern = regexp.MustCompile(`^([A-Z]+)(\d{2}[A-Z]{3})(\d+)(CE|PE)$`)

// FormatUnderlying normalizes a shorthand underlying symbol into the
// broker's data symbol. Already-qualified symbols (containing ':') are
// returned unchanged; unknown names default to an NSE equity.
func FormatUnderlying(symbol string) string {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	if strings.Contains(s, ":") {
		return s
	}
	if full, ok := indexAliases[s]; ok {
		return full
	}
	return fmt.Sprintf("NSE:%s-EQ", s)
}

// Root extracts the option root from an underlying data symbol:
// "NSE:NIFTY50-INDEX" -> "NIFTY", "NSE:SBIN-EQ" -> "SBIN".
func Root(underlying string) string {
	s := strings.ToUpper(strings.TrimSpace(underlying))
	if i := strings.Index(s, ":"); i >= 0 {
		s = s[i+1:]
	}
	if i := strings.Index(s, "-"); i >= 0 {
		s = s[:i]
	}
	// Index data symbols carry a "50" suffix their option chain drops.
	s = strings.TrimSuffix(s, "50")
	return s
}

// NearestStrike rounds a spot price to the nearest multiple of the
// strike interval (ATM strike selection).
func NearestStrike(spot float64, interval int) int {
	if interval <= 0 {
		return int(math.Round(spot))
	}
	return int(math.Round(spot/float64(interval))) * interval
}

// ContractSymbol builds a broker option symbol, e.g.
// ContractSymbol("NIFTY", "25AUG", 24000, domain.LongCall) ->
// "NSE:NIFTY25AUG24000CE".
func ContractSymbol(root, expiry string, strike int, dir domain.Direction) string {
	optType := "CE"
	if dir == domain.LongPut {
		optType = "PE"
	}
	return fmt.Sprintf("NSE:%s%s%d%s", strings.ToUpper(root), strings.ToUpper(expiry), strike, optType)
}

// Contract holds the parsed components of an option symbol.
type Contract struct {
	Exchange   string
	Underlying string
	Expiry     string
	Strike     int
	Direction  domain.Direction
}

// Parse decomposes an option contract symbol. It returns an error when
// the symbol does not follow the EXCHANGE:ROOT+EXPIRY+STRIKE+CE/PE
// shape.
func Parse(symbol string) (*Contract, error) {
	parts := strings.SplitN(strings.ToUpper(strings.TrimSpace(symbol)), ":", 2)
	if len(parts) != 2 {
		return nil, fmt.Errorf("option symbol %q is missing the exchange prefix", symbol)
	}
	m := contractPattern.FindStringSubmatch(parts[1])
	if m == nil {
		return nil, fmt.Errorf("option symbol %q does not match ROOT+EXPIRY+STRIKE+CE/PE", symbol)
	}
	strike, err := strconv.Atoi(m[3])
	if err != nil {
		return nil, fmt.Errorf("invalid strike in option symbol %q: %w", symbol, err)
	}
	dir := domain.LongCall
	if m[4] == "PE" {
		dir = domain.LongPut
	}
	return &Contract{
		Exchange:   parts[0],
		Underlying: m[1],
		Expiry:     m[2],
		Strike:     strike,
		Direction:  dir,
	}, nil
}
