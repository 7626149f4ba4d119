package strategy

import (
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/atlas-quant/upbit-engine/internal/indicator"
	"github.com/atlas-quant/upbit-engine/pkg/types"
)

const (
	volumeZPeriod  = 30
	volumeMinWin   = 30
	volumeEntryZ   = 1.5 // default minZScore, overridden per hour by HourParam
	volumeDropZ    = -0.5
)

// VolumeImpulse buys on a volume Z-score spike (a surge relative to
// its recent distribution) and exits once volume collapses back
// below the drop threshold.
type VolumeImpulse struct {
	base
	entryZ decimal.Decimal
}

func NewVolumeImpulse(logger *zap.Logger) *VolumeImpulse {
	return &VolumeImpulse{
		base:   newBase(logger.Named("strategy.volume_impulse")),
		entryZ: decimal.NewFromFloat(volumeEntryZ),
	}
}

func (s *VolumeImpulse) Name() string       { return "volume_impulse" }
func (s *VolumeImpulse) MinWindowLen() int { return volumeMinWin }

// SetEntryThreshold lets the tuner's per-hour parameters override the
// default Z-score entry threshold for the live path.
func (s *VolumeImpulse) SetEntryThreshold(z decimal.Decimal) {
	s.mu.Lock()
	s.entryZ = z
	s.mu.Unlock()
}

func (s *VolumeImpulse) Analyze(market string, window types.CandleWindow) (types.Signal, error) {
	return s.evaluate(market, window, nil)
}

func (s *VolumeImpulse) AnalyzeForBacktest(market string, window types.CandleWindow, position *types.Position) (types.Signal, error) {
	return s.evaluate(market, window, position)
}

func (s *VolumeImpulse) evaluate(market string, window types.CandleWindow, position *types.Position) (types.Signal, error) {
	bars := window.Ascending()
	if len(bars) < volumeMinWin {
		return types.HoldSignal(), nil
	}
	z, err := indicator.VolumeZScore(bars, volumeZPeriod)
	if err != nil {
		return types.Signal{}, err
	}
	last := window.Last()
	holding := position != nil && position.IsOpen()

	s.mu.Lock()
	threshold := s.entryZ
	s.mu.Unlock()

	if !holding {
		if z.GreaterThanOrEqual(threshold) {
			s.setAdvisory(market, decimal.Zero, decimal.Zero, last.TradePrice)
			return types.Signal{Action: types.Buy, EntryPrice: last.TradePrice}, nil
		}
		return types.HoldSignal(), nil
	}

	if z.LessThanOrEqual(decimal.NewFromFloat(volumeDropZ)) {
		return s.sellWithReason(market, types.ExitVolumeDrop), nil
	}
	return types.HoldSignal(), nil
}
