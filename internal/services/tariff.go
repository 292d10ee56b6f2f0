package services

import (
	"context"
	"math"
	"time"

	"charterops/internal/config"
	"charterops/internal/domain"
	"charterops/internal/domain/models"
	"charterops/internal/store"
	"charterops/internal/utils"
)

// TariffService prices hire requests from the dated category tariffs.
// Missing or inactive reference data zeroes the affected line instead of
// failing the quote.
type TariffService struct {
	Store store.Store
	Rules config.TariffRules
}

type QuoteLine struct {
	CategoryID int64 `json:"category_id"`
	Quantity   int   `json:"quantity"`
}

type QuoteRequest struct {
	Lines      []QuoteLine `json:"categories"`
	DistanceKm float64     `json:"distance_km"`
	UseHighway bool        `json:"use_highway"`
	HireTypeID int64       `json:"hire_type_id"`
	IsHoliday  bool        `json:"is_holiday"`
	IsWeekend  bool        `json:"is_weekend"`
	StartTime  time.Time   `json:"start_time"`
	EndTime    time.Time   `json:"end_time"`
}

// LineQuote is either a priced line or a skipped one with its reason.
type LineQuote struct {
	CategoryID int64       `json:"category_id"`
	Quantity   int         `json:"quantity"`
	Amount     utils.Money `json:"amount"`
	Skipped    bool        `json:"skipped,omitempty"`
	SkipReason string      `json:"skip_reason,omitempty"`
}

type Quote struct {
	HireType models.HireTypeCode `json:"hire_type"`
	Lines    []LineQuote         `json:"lines"`
	Total    utils.Money         `json:"total"`
}

func (s TariffService) Price(ctx context.Context, req QuoteRequest) (utils.Money, error) {
	q, err := s.Quote(ctx, req)
	if err != nil {
		return 0, err
	}
	return q.Total, nil
}

func (s TariffService) Quote(ctx context.Context, req QuoteRequest) (Quote, error) {
	code, err := s.hireTypeCode(ctx, req.HireTypeID)
	if err != nil {
		return Quote{}, err
	}
	multiplier := s.Rules.SurchargeMultiplier(req.IsHoliday, req.IsWeekend)

	quote := Quote{HireType: code, Lines: make([]LineQuote, 0, len(req.Lines))}
	var sum utils.Money
	for _, line := range req.Lines {
		lq := LineQuote{CategoryID: line.CategoryID, Quantity: line.Quantity}
		if line.Quantity <= 0 {
			lq.Skipped, lq.SkipReason = true, "quantity must be positive"
			quote.Lines = append(quote.Lines, lq)
			continue
		}
		p, err := s.Store.GetEffectivePricing(ctx, line.CategoryID, req.StartTime)
		switch {
		case domain.IsNotFound(err):
			lq.Skipped, lq.SkipReason = true, "no pricing for category"
		case err != nil:
			return Quote{}, err
		case p.Status != models.PricingActive:
			lq.Skipped, lq.SkipReason = true, "pricing inactive"
		default:
			lq.Amount = utils.MoneyFromFloat(lineAmount(code, p, line.Quantity, req, multiplier))
			sum += lq.Amount
		}
		quote.Lines = append(quote.Lines, lq)
	}
	quote.Total = sum.NonNegative()
	return quote, nil
}

// hireTypeCode returns "" for an unknown hire type, which prices per km.
func (s TariffService) hireTypeCode(ctx context.Context, id int64) (models.HireTypeCode, error) {
	if id <= 0 {
		return "", nil
	}
	h, err := s.Store.GetHireType(ctx, id)
	if domain.IsNotFound(err) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return h.Code, nil
}

func lineAmount(code models.HireTypeCode, p models.VehicleCategoryPricing, quantity int, req QuoteRequest, multiplier float64) float64 {
	qty := float64(quantity)
	distance := math.Max(0, req.DistanceKm)

	var line float64
	switch code {
	case models.HireDaily:
		days := math.Ceil(req.EndTime.Sub(req.StartTime).Hours() / 24)
		if days < 1 {
			days = 1
		}
		line = (p.SameDayFixedPrice*multiplier*days + p.BaseFare) * qty
	case models.HireRoundTrip, models.HireHourly:
		rate := 2 * distance * p.PricePerKm
		if p.SameDayFixedPrice > 0 && utils.SameDay(req.StartTime, req.EndTime) {
			rate = p.SameDayFixedPrice
		}
		line = (rate + p.BaseFare + p.FixedCosts) * qty
	default:
		line = (distance*p.PricePerKm + p.BaseFare) * qty
	}

	if req.UseHighway {
		line += p.HighwayFee * qty
	}
	if p.IsPremium {
		line += p.PremiumSurcharge * qty
	}
	return line
}
