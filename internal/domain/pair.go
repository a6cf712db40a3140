package domain

import "strings"

// SplitPair 拆分交易对为 base/quote。
// quote 取配置中能匹配的最长后缀（例如 BTCUSDT -> BTC/USDT，BTCEUR -> BTC/EUR）。
func SplitPair(pair string, quotes []string) (base, quote string, err error) {
	p := strings.ToUpper(strings.TrimSpace(pair))
	for _, q := range quotes {
		q = strings.ToUpper(q)
		if q == "" || !strings.HasSuffix(p, q) || len(q) <= len(quote) {
			continue
		}
		quote = q
	}
	if quote == "" {
		return "", "", InvalidInputf("unsupported quote asset in pair %q", pair)
	}
	base = strings.TrimSuffix(p, quote)
	if base == "" {
		return "", "", InvalidInputf("empty base asset in pair %q", pair)
	}
	return base, quote, nil
}

// NormalizePair 交易对统一为大写
func NormalizePair(pair string) string {
	return strings.ToUpper(strings.TrimSpace(pair))
}
