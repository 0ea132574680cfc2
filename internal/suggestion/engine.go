package suggestion

import (
	"math"
	"sort"
	"strings"
	"time"

	"paintstore/backend/internal/domain"
	"paintstore/backend/internal/phone"
)

const (
	defaultLimit = 8
	maxLimit     = 50
)

type Engine struct {
	minScore    float64
	recencyDays float64
}

func NewEngine() *Engine {
	return &Engine{minScore: 0.05, recencyDays: 90}
}

// Suggest ranks customers for a typed query. An empty query ranks everyone
// by recency, balance and frequency alone.
func (e *Engine) Suggest(query string, customers []domain.CustomerSummary, limit int, now time.Time) []domain.CustomerSuggestion {
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}

	query = strings.TrimSpace(query)
	nameQuery := strings.ToLower(query)
	digitQuery := phone.Digits(query)

	maxOutstanding := 0.0
	for _, c := range customers {
		if v := c.Outstanding.InexactFloat64(); v > maxOutstanding {
			maxOutstanding = v
		}
	}

	out := make([]domain.CustomerSuggestion, 0, len(customers))
	for _, c := range customers {
		phoneMatch := phoneScore(digitQuery, phone.Digits(c.CustomerPhone))
		nameMatch := nameScore(nameQuery, strings.ToLower(c.CustomerName))
		if query != "" && phoneMatch == 0 && nameMatch == 0 {
			continue
		}

		match := math.Max(phoneMatch, nameMatch)
		balanceScore := 0.0
		if maxOutstanding > 0 {
			balanceScore = clamp(c.Outstanding.InexactFloat64()/maxOutstanding, 0, 1)
		}
		days := now.Sub(c.LastSaleAt).Hours() / 24
		recencyScore := clamp(1-days/e.recencyDays, 0, 1)
		frequencyScore := clamp(float64(c.SaleCount)/10.0, 0, 1)

		score :=
			0.55*match +
				0.20*recencyScore +
				0.15*balanceScore +
				0.10*frequencyScore
		if score < e.minScore {
			continue
		}

		out = append(out, domain.CustomerSuggestion{
			CustomerSummary: c,
			Score:           round2(score),
			ReasonCode:      deriveReason(0.55*phoneMatch, 0.55*nameMatch, 0.15*balanceScore, 0.20*recencyScore, 0.10*frequencyScore),
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		if !out[i].LastSaleAt.Equal(out[j].LastSaleAt) {
			return out[i].LastSaleAt.After(out[j].LastSaleAt)
		}
		return out[i].CustomerPhone < out[j].CustomerPhone
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

// phoneScore matches typed digits against the stored E.164 digits. A
// national trunk prefix ("0300...") is tolerated by also trying the query
// without leading zeros.
func phoneScore(query string, stored string) float64 {
	if len(query) < 3 || stored == "" {
		return 0
	}
	if strings.HasPrefix(stored, query) {
		return 1
	}
	trimmed := strings.TrimLeft(query, "0")
	if len(trimmed) >= 3 && strings.Contains(stored, trimmed) {
		return 0.9
	}
	if strings.Contains(stored, query) {
		return 0.7
	}
	return 0
}

func nameScore(query string, name string) float64 {
	if query == "" || name == "" {
		return 0
	}
	if strings.HasPrefix(name, query) {
		return 1
	}
	for _, word := range strings.Fields(name) {
		if strings.HasPrefix(word, query) {
			return 0.85
		}
	}
	if strings.Contains(name, query) {
		return 0.6
	}
	return 0
}

// deriveReason names the largest weighted contribution to the score.
func deriveReason(phoneMatch float64, nameMatch float64, balanceScore float64, recencyScore float64, frequencyScore float64) string {
	type reasonWeight struct {
		code  string
		value float64
	}

	reasons := []reasonWeight{
		{code: "phone_match", value: phoneMatch},
		{code: "name_match", value: nameMatch},
		{code: "open_balance", value: balanceScore},
		{code: "recent_customer", value: recencyScore},
		{code: "frequent_customer", value: frequencyScore},
	}

	sort.SliceStable(reasons, func(i, j int) bool {
		return reasons[i].value > reasons[j].value
	})
	return reasons[0].code
}

func clamp(val float64, minVal float64, maxVal float64) float64 {
	if val < minVal {
		return minVal
	}
	if val > maxVal {
		return maxVal
	}
	return val
}

func round2(val float64) float64 {
	return math.Round(val*100) / 100
}
