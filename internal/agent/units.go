package agent

import (
	"fmt"
	"math/big"
	"strings"
)

// parseUnits converts a decimal amount such as "1.25" into base units.
func parseUnits(amount string, decimals uint8) (*big.Int, error) {
	amount = strings.TrimSpace(amount)
	if amount == "" {
		return nil, fmt.Errorf("金额不能为空")
	}
	whole, frac, _ := strings.Cut(amount, ".")
	if whole == "" {
		whole = "0"
	}
	if len(frac) > int(decimals) {
		if strings.Trim(frac[decimals:], "0") != "" {
			return nil, fmt.Errorf("金额 %s 超出 %d 位小数精度", amount, decimals)
		}
		frac = frac[:decimals]
	}
	frac += strings.Repeat("0", int(decimals)-len(frac))

	value, ok := new(big.Int).SetString(whole+frac, 10)
	if !ok || strings.ContainsAny(whole+frac, "+-") {
		return nil, fmt.Errorf("无效的金额: %s", amount)
	}
	if value.Sign() <= 0 {
		return nil, fmt.Errorf("金额必须大于零: %s", amount)
	}
	return value, nil
}

// formatUnits renders base units as a decimal string without trailing zeros.
func formatUnits(value *big.Int, decimals uint8) string {
	if value == nil {
		return "0"
	}
	neg := value.Sign() < 0
	digits := new(big.Int).Abs(value).String()
	if pad := int(decimals) + 1 - len(digits); pad > 0 {
		digits = strings.Repeat("0", pad) + digits
	}
	whole, frac := digits[:len(digits)-int(decimals)], strings.TrimRight(digits[len(digits)-int(decimals):], "0")
	out := whole
	if frac != "" {
		out += "." + frac
	}
	if neg {
		out = "-" + out
	}
	return out
}
