// Package risk scores stockout, overstock and expiry risk for a product.
// Every function here is pure: same inputs, same assessment.
package risk

import (
	"fmt"
	"math"
	"time"

	"stockledger/internal/domain/forecast"
	"stockledger/internal/domain/product"
)

// Level is a coarse risk bucket.
type Level string

const (
	LevelLow    Level = "LOW"
	LevelMedium Level = "MEDIUM"
	LevelHigh   Level = "HIGH"
)

// Level boundaries. Policy constants, keep them exact.
const (
	HighThreshold   = 80.0
	MediumThreshold = 50.0
)

// Stockout scores.
const (
	ScoreOutOfStock       = 100.0
	ScoreStockoutImminent = 90.0 // within StockoutImminentDays
	ScoreStockoutSoon     = 60.0 // within StockoutSoonDays
	MaxDemandPressure     = 50.0

	StockoutImminentDays = 3
	StockoutSoonDays     = 7
)

// Overstock scores.
const (
	ScoreOverstock     = 70.0
	ScoreAboveReorder  = 30.0
	ScoreStockBalanced = 5.0
)

// Expiry scores.
const (
	ScoreExpired      = 100.0
	ScoreExpiresWeek  = 90.0
	ScoreExpiresMonth = 60.0
	ScoreExpiresLater = 20.0
)

// Assessment is the outcome of one evaluator.
type Assessment struct {
	Level  Level   `json:"level"`
	Score  float64 `json:"riskScore"`
	Reason string  `json:"reason"`
}

// StockoutAssessment adds the forecasted stockout period.
type StockoutAssessment struct {
	Assessment
	// DaysToStockout is the 1-based period in which cumulative lower-bound
	// demand reaches current stock. Nil when the horizon never gets there.
	DaysToStockout *int `json:"daysToStockout,omitempty"`
}

// ExpiryAssessment adds the days left before expiry.
type ExpiryAssessment struct {
	Assessment
	DaysLeft *int `json:"daysLeft,omitempty"`
}

// Evaluation bundles the three evaluators for a product.
type Evaluation struct {
	Stockout  StockoutAssessment `json:"stockout"`
	Overstock Assessment         `json:"overstock"`
	Expiry    ExpiryAssessment   `json:"expiry"`
}

// LevelFor maps a score to its level.
func LevelFor(score float64) Level {
	switch {
	case score >= HighThreshold:
		return LevelHigh
	case score >= MediumThreshold:
		return LevelMedium
	default:
		return LevelLow
	}
}

func assess(score float64, reason string) Assessment {
	return Assessment{Level: LevelFor(score), Score: score, Reason: reason}
}

// Evaluate runs all evaluators. points must be in chronological order.
func Evaluate(p product.Product, points []forecast.Point, now time.Time) Evaluation {
	return Evaluation{
		Stockout:  Stockout(p.CurrentStock, points),
		Overstock: Overstock(p.CurrentStock, p.OverStockLimit, p.ReorderPoint, points),
		Expiry:    Expiry(p.ExpiryDate, now),
	}
}

// Stockout walks the forecast accumulating lower-bound demand and finds the
// first period where it covers current stock. Negative bounds count as zero.
func Stockout(stock int64, points []forecast.Point) StockoutAssessment {
	var (
		cumLower float64
		cumMean  float64
		days     *int
	)
	for i, pt := range points {
		cumLower += math.Max(0, pt.Lower95)
		cumMean += pt.Predicted
		if days == nil && cumLower >= float64(stock) {
			d := i + 1
			days = &d
		}
	}

	out := StockoutAssessment{DaysToStockout: days}
	switch {
	case stock <= 0:
		out.Assessment = assess(ScoreOutOfStock, "product is out of stock")
	case days != nil && *days <= StockoutImminentDays:
		out.Assessment = assess(ScoreStockoutImminent,
			fmt.Sprintf("stock of %d runs out within %d day(s) even at low demand", stock, *days))
	case days != nil && *days <= StockoutSoonDays:
		out.Assessment = assess(ScoreStockoutSoon,
			fmt.Sprintf("stock of %d runs out within %d days at low demand", stock, *days))
	default:
		score := math.Min(MaxDemandPressure, cumMean/float64(stock+1)*MaxDemandPressure)
		if score < 0 {
			score = 0
		}
		out.Assessment = assess(round2(score),
			fmt.Sprintf("forecast demand %.1f against stock %d", cumMean, stock))
	}
	return out
}

// Overstock compares stock with the configured limit and the upper-bound
// demand. overStockLimit <= 0 means no limit is configured.
func Overstock(stock, overStockLimit, reorderPoint int64, points []forecast.Point) Assessment {
	var upper float64
	for _, pt := range points {
		upper += pt.Upper95
	}

	switch {
	case overStockLimit > 0 && stock > overStockLimit && upper < float64(stock)/2:
		return assess(ScoreOverstock,
			fmt.Sprintf("stock %d exceeds limit %d and is more than twice the upper demand %.1f", stock, overStockLimit, upper))
	case stock > reorderPoint:
		return assess(ScoreAboveReorder, fmt.Sprintf("stock %d above reorder point %d", stock, reorderPoint))
	default:
		return assess(ScoreStockBalanced, "stock within expected range")
	}
}

// Expiry scores the remaining shelf life. Days left are rounded up, so a
// product expiring in 1 hour has 1 day left.
func Expiry(expiry *time.Time, now time.Time) ExpiryAssessment {
	if expiry == nil {
		return ExpiryAssessment{Assessment: assess(0, "no expiry date")}
	}

	daysLeft := int(math.Ceil(expiry.Sub(now).Hours() / 24))
	out := ExpiryAssessment{DaysLeft: &daysLeft}
	switch {
	case daysLeft <= 0:
		out.Assessment = assess(ScoreExpired, "product has expired")
	case daysLeft <= 7:
		out.Assessment = assess(ScoreExpiresWeek, fmt.Sprintf("expires in %d day(s)", daysLeft))
	case daysLeft <= 30:
		out.Assessment = assess(ScoreExpiresMonth, fmt.Sprintf("expires in %d days", daysLeft))
	default:
		out.Assessment = assess(ScoreExpiresLater, fmt.Sprintf("expires in %d days", daysLeft))
	}
	return out
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
