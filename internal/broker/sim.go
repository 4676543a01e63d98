package broker

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/seojinpark/volumetrader/internal/market"
)

// Sim is an in-process QuoteSource and OrderGateway so the whole loop runs
// without credentials. Prices follow a random walk; cumulative volume grows
// each tick and occasionally surges so breakouts actually happen.
type Sim struct {
	mu      sync.Mutex
	random  *rand.Rand
	cash    float64
	nextID  int
	symbols map[string]*simSymbol
}

type simSymbol struct {
	name       string
	basePrice  float64
	price      float64
	volatility float64
	todayVol   int64
	prevVol    int64
	baseTick   int64 // volume added per tick
	strength   float64
}

func NewSim(cash float64) *Sim {
	r := rand.New(rand.NewSource(time.Now().UnixNano()))
	s := &Sim{
		random: r,
		cash:   cash,
		symbols: map[string]*simSymbol{
			"005930": {name: "Samsung Electronics", basePrice: 71_000, volatility: 0.015, prevVol: 12_000_000, baseTick: 80_000, strength: 1.1},
			"000660": {name: "SK hynix", basePrice: 178_000, volatility: 0.025, prevVol: 4_000_000, baseTick: 30_000, strength: 1.2},
			"035720": {name: "Kakao", basePrice: 42_000, volatility: 0.03, prevVol: 2_500_000, baseTick: 25_000, strength: 1.3},
			"035420": {name: "NAVER", basePrice: 185_000, volatility: 0.02, prevVol: 1_200_000, baseTick: 10_000, strength: 1.0},
			"068270": {name: "Celltrion", basePrice: 24_500, volatility: 0.04, prevVol: 900_000, baseTick: 12_000, strength: 1.4},
		},
	}
	for _, sym := range s.symbols {
		sym.price = sym.basePrice
	}
	return s
}

// tick advances one symbol's simulated state.
func (s *Sim) tick(sym *simSymbol) {
	step := s.random.NormFloat64() * sym.volatility / math.Sqrt(390)
	sym.price = math.Max(1, sym.price*(1+step))

	vol := sym.baseTick + s.random.Int63n(sym.baseTick)
	if s.random.Float64() < 0.05 { // occasional surge
		vol *= 5
	}
	sym.todayVol += vol

	sym.strength = math.Max(0.3, sym.strength+s.random.NormFloat64()*0.1)
}

func (s *Sim) snapshot(symbol string, sym *simSymbol) market.Snapshot {
	return market.Snapshot{
		Symbol:        symbol,
		Name:          sym.name,
		Price:         math.Round(sym.price),
		TodayVolume:   sym.todayVol,
		PrevDayVolume: sym.prevVol,
		PriceChange:   sym.price/sym.basePrice - 1,
		TradeValue:    sym.price * float64(sym.baseTick),
		ExecStrength:  sym.strength,
		Timestamp:     time.Now(),
	}
}

func (s *Sim) RankedSnapshot(ctx context.Context, limit int) ([]market.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]market.Snapshot, 0, len(s.symbols))
	for code, sym := range s.symbols {
		s.tick(sym)
		out = append(out, s.snapshot(code, sym))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TodayVolume > out[j].TodayVolume })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Sim) Quote(ctx context.Context, symbol string) (market.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return market.Snapshot{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	sym, ok := s.symbols[symbol]
	if !ok {
		return market.Snapshot{}, fmt.Errorf("sim: unknown symbol %q", symbol)
	}
	s.tick(sym)
	return s.snapshot(symbol, sym), nil
}

func (s *Sim) ExecutionStrength(ctx context.Context, symbol string) (float64, error) {
	snap, err := s.Quote(ctx, symbol)
	if err != nil {
		return 0, err
	}
	return snap.ExecStrength, nil
}

func (s *Sim) DailyCandles(ctx context.Context, symbol string, n int) ([]Candle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	sym, ok := s.symbols[symbol]
	if !ok {
		return nil, fmt.Errorf("sim: unknown symbol %q", symbol)
	}

	// Walk backwards from the base price to fabricate history.
	out := make([]Candle, n)
	price := sym.basePrice
	for i := n - 1; i >= 0; i-- {
		open := price * (1 + s.random.NormFloat64()*sym.volatility)
		high := math.Max(open, price) * (1 + s.random.Float64()*sym.volatility)
		low := math.Min(open, price) * (1 - s.random.Float64()*sym.volatility)
		out[i] = Candle{
			Date:   time.Now().AddDate(0, 0, i-n),
			Open:   open,
			High:   high,
			Low:    low,
			Close:  price,
			Volume: sym.prevVol + s.random.Int63n(sym.prevVol/2+1),
		}
		price *= 1 - s.random.NormFloat64()*sym.volatility
		price = math.Max(1, price)
	}
	return out, nil
}

func (s *Sim) SubmitOrder(ctx context.Context, req OrderRequest) (OrderResult, error) {
	if err := ctx.Err(); err != nil {
		return OrderResult{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	fill := req.Price
	if fill <= 0 {
		if sym, ok := s.symbols[req.Symbol]; ok {
			fill = math.Round(sym.price)
		}
	}
	notional := fill * float64(req.Quantity)
	switch req.Side {
	case Buy:
		if notional > s.cash {
			return OrderResult{}, fmt.Errorf("sim: insufficient cash for %s", req.Symbol)
		}
		s.cash -= notional
	case Sell:
		s.cash += notional
	default:
		return OrderResult{}, fmt.Errorf("sim: unknown side %q", req.Side)
	}

	s.nextID++
	return OrderResult{
		BrokerOrderID: fmt.Sprintf("sim-%06d", s.nextID),
		FilledQty:     req.Quantity,
		FilledPrice:   fill,
	}, nil
}

func (s *Sim) AccountBalance(ctx context.Context) (Balance, error) {
	if err := ctx.Err(); err != nil {
		return Balance{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return Balance{Cash: s.cash, Timestamp: time.Now()}, nil
}
