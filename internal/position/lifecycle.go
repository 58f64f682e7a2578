// Package position manages the lifecycle of one open position per
// instrument: entry order, fill confirmation, protective exit placement, and
// concurrent exit monitoring until settlement.
//
// States: Requesting → AwaitingFill → ProtectivePending → Monitoring →
// Settled, with Voided reachable from any non-terminal state on
// irrecoverable failure. All exchange calls follow a two-tier retry
// discipline: bounded retries for transient transport errors, immediate
// termination on explicit cancelled/failed order states.
package position

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"sync/atomic"
	"time"

	"crypto-botv1/internal/model"
	"crypto-botv1/internal/registry"
)

// Validation errors returned synchronously by Enter, before any order call.
var (
	ErrPositionOpen   = errors.New("position already open for instrument")
	ErrBothRiskInputs = errors.New("risk amount and risk percentage are mutually exclusive")
	ErrNoRiskInput    = errors.New("either risk amount or risk percentage must be set")
	ErrRiskExceeded   = errors.New("risk exceeds configured max risk ratio")
	ErrBadProtective  = errors.New("stop-loss and take-profit percentages must be positive")
	ErrNoPriceData    = errors.New("no price estimate available for instrument")
)

// Config tunes the lifecycle retry and monitoring behavior.
type Config struct {
	MaxRisk             float64       // max fraction of buying power per trade
	SubmitAttempts      int           // order submission retries (default 10)
	SubmitInterval      time.Duration // pause between submission retries (default 2s)
	FillPollInterval    time.Duration // fill-status poll cadence (default 1s)
	FillErrorBudget     int           // transient errors tolerated while polling (default 3)
	MonitorIdleInterval time.Duration // safety-net recheck while monitoring (default 5s)
}

func (c Config) withDefaults() Config {
	if c.SubmitAttempts <= 0 {
		c.SubmitAttempts = 10
	}
	if c.SubmitInterval <= 0 {
		c.SubmitInterval = 2 * time.Second
	}
	if c.FillPollInterval <= 0 {
		c.FillPollInterval = time.Second
	}
	if c.FillErrorBudget <= 0 {
		c.FillErrorBudget = 3
	}
	if c.MonitorIdleInterval <= 0 {
		c.MonitorIdleInterval = 5 * time.Second
	}
	return c
}

// Tracker records settled and voided positions (the sqlite journal
// implements it). Calls are best-effort; errors are logged, never fatal.
type Tracker interface {
	RecordEntry(p *Position) error
	RecordExit(p *Position, outcome, reason string) error
}

// Position is the live handle for one open position.
type Position struct {
	Symbol            string
	EntryOrderID      string
	Qty               float64
	EntryPrice        float64
	StopLoss          float64 // 0 = not requested
	TakeProfit        float64 // 0 = not requested
	ProtectiveOrderID string
	OpenedAt          time.Time

	h     *registry.Handle
	state atomic.Int32
	done  chan struct{}
}

// State returns the current lifecycle state.
func (p *Position) State() model.PositionState {
	return model.PositionState(p.state.Load())
}

// Done is closed when the position reaches a terminal state.
func (p *Position) Done() <-chan struct{} {
	return p.done
}

func (p *Position) setState(s model.PositionState) {
	p.state.Store(int32(s))
}

// Manager drives position lifecycles against the exchange. One Manager
// serves all instruments; each accepted entry runs in its own goroutine.
type Manager struct {
	client  model.ExchangeClient
	reg     *registry.Registry
	cfg     Config
	tracker Tracker // optional

	// Metrics hooks (optional, set externally)
	OnOpened  func()
	OnSettled func()
	OnVoided  func()
	OnRetry   func()

	newClientOrderID func(symbol string) string
}

// NewManager creates a Manager. tracker may be nil.
func NewManager(client model.ExchangeClient, reg *registry.Registry, cfg Config, tracker Tracker) *Manager {
	return &Manager{
		client:  client,
		reg:     reg,
		cfg:     cfg.withDefaults(),
		tracker: tracker,
		newClientOrderID: func(symbol string) string {
			return fmt.Sprintf("%s-%d", symbol, time.Now().UnixNano())
		},
	}
}

// Enter validates and sizes a long entry, claims the instrument's position
// slot, and starts the lifecycle. Validation failures reject synchronously
// with no order placed and no state mutated. After a nil return, failures
// surface only through logs and the position's terminal state
// (fire-and-forget contract).
func (m *Manager) Enter(ctx context.Context, req model.EntryRequest) (*Position, error) {
	h, ok := m.reg.Handle(req.Symbol)
	if !ok {
		return nil, fmt.Errorf("instrument %s is not tracked", req.Symbol)
	}
	if req.RiskAmount != 0 && req.RiskPercentage != 0 {
		return nil, ErrBothRiskInputs
	}
	if req.RiskAmount == 0 && req.RiskPercentage == 0 {
		return nil, ErrNoRiskInput
	}
	if req.RiskAmount < 0 || req.RiskPercentage < 0 {
		return nil, fmt.Errorf("negative risk input: %w", ErrNoRiskInput)
	}
	if req.StopLossPct < 0 || req.TakeProfitPct < 0 {
		return nil, ErrBadProtective
	}
	if req.RiskPercentage > m.cfg.MaxRisk {
		return nil, fmt.Errorf("risk percentage %.4f: %w", req.RiskPercentage, ErrRiskExceeded)
	}

	if !h.TryAcquirePosition() {
		return nil, ErrPositionOpen
	}

	price := h.PriceEstimate()
	if price <= 0 {
		h.ReleasePosition()
		return nil, ErrNoPriceData
	}

	account, err := m.getAccountWithRetry(ctx)
	if err != nil {
		h.ReleasePosition()
		return nil, fmt.Errorf("account lookup: %w", err)
	}
	if account.BuyingPower <= 0 {
		h.ReleasePosition()
		return nil, fmt.Errorf("no buying power available")
	}

	riskPct := req.RiskPercentage
	if req.RiskAmount > 0 {
		riskPct = req.RiskAmount / account.BuyingPower
	}
	if riskPct > m.cfg.MaxRisk {
		h.ReleasePosition()
		return nil, fmt.Errorf("risk amount %.2f of buying power %.2f: %w",
			req.RiskAmount, account.BuyingPower, ErrRiskExceeded)
	}

	quoteAmt := account.BuyingPower * riskPct
	qty := roundQty(quoteAmt / price)
	if qty <= 0 {
		h.ReleasePosition()
		return nil, fmt.Errorf("computed asset quantity is zero (quote %.2f at price %.2f)", quoteAmt, price)
	}

	p := &Position{
		Symbol:     req.Symbol,
		Qty:        qty,
		EntryPrice: price,
		OpenedAt:   time.Now(),
		h:          h,
		done:       make(chan struct{}),
	}
	if req.StopLossPct > 0 {
		p.StopLoss = price * (1 - req.StopLossPct)
	}
	if req.TakeProfitPct > 0 {
		p.TakeProfit = price * (1 + req.TakeProfitPct)
	}
	p.setState(model.StateRequesting)

	if m.OnOpened != nil {
		m.OnOpened()
	}
	go m.run(ctx, p)
	return p, nil
}

// run drives the state machine to a terminal state.
func (m *Manager) run(ctx context.Context, p *Position) {
	entry, err := m.submitWithRetry(ctx, model.OrderRequest{
		ClientOrderID: m.newClientOrderID(p.Symbol),
		Symbol:        p.Symbol,
		Side:          model.SideBuy,
		Type:          model.TypeMarket,
		AssetQty:      p.Qty,
	})
	if err != nil {
		m.void(p, "", fmt.Sprintf("entry submission failed: %v", err))
		return
	}
	p.EntryOrderID = entry.ID
	p.setState(model.StateAwaitingFill)

	if err := m.waitFill(entry.ID); err != nil {
		m.void(p, entry.ID, fmt.Sprintf("entry fill: %v", err))
		return
	}

	log.Printf("[position] %s long filled [close=%.4f qty=%.6f sl=%.4f tp=%.4f order=%s]",
		p.Symbol, p.EntryPrice, p.Qty, p.StopLoss, p.TakeProfit, entry.ID)
	if m.tracker != nil {
		if err := m.tracker.RecordEntry(p); err != nil {
			log.Printf("[position] %s: journal entry record failed: %v", p.Symbol, err)
		}
	}
	p.setState(model.StateProtectivePending)

	switch {
	case p.StopLoss == 0 && p.TakeProfit == 0:
		// No protective exits requested: nothing left to manage.
		m.settle(p, "no protective exits requested")
		return

	case p.StopLoss == 0:
		// Take-profit only: resting limit sell, fire-and-forget.
		if _, err := m.submitWithRetry(ctx, model.OrderRequest{
			ClientOrderID: m.newClientOrderID(p.Symbol),
			Symbol:        p.Symbol,
			Side:          model.SideSell,
			Type:          model.TypeLimit,
			AssetQty:      p.Qty,
			StopPrice:     p.TakeProfit,
			TimeInForce:   "gtc",
		}); err != nil {
			m.void(p, entry.ID, fmt.Sprintf("take-profit limit placement failed: %v", err))
			return
		}
		m.settle(p, "resting take-profit placed")
		return
	}

	// Stop-loss requested (with or without take-profit): resting stop
	// order, then live monitoring.
	sl, err := m.submitWithRetry(ctx, model.OrderRequest{
		ClientOrderID: m.newClientOrderID(p.Symbol),
		Symbol:        p.Symbol,
		Side:          model.SideSell,
		Type:          model.TypeStopLoss,
		AssetQty:      p.Qty,
		StopPrice:     p.StopLoss,
		TimeInForce:   "gtc",
	})
	if err != nil {
		m.void(p, entry.ID, fmt.Sprintf("stop-loss placement failed: %v", err))
		return
	}
	p.ProtectiveOrderID = sl.ID
	p.setState(model.StateMonitoring)
	m.monitor(ctx, p)
}

// monitor concurrently watches the resting stop-loss order and the live
// price against the take-profit threshold. First exit to trigger wins; the
// loop is single-goroutine, so the two exit paths are mutually exclusive by
// construction.
func (m *Manager) monitor(ctx context.Context, p *Position) {
	for {
		order, err := m.client.GetOrder(ctx, p.ProtectiveOrderID)
		if err != nil {
			// Transient: the resting order is still working on the
			// exchange, just keep watching.
			log.Printf("[position] %s: stop-loss status poll failed: %v", p.Symbol, err)
		} else {
			switch order.Status {
			case model.OrderFilled:
				loss := (p.StopLoss - p.EntryPrice) * p.Qty
				log.Printf("[position] %s: stop-loss %s filled at %.4f, realized %.2f",
					p.Symbol, p.ProtectiveOrderID, p.StopLoss, loss)
				m.settle(p, "stop-loss filled")
				return
			case model.OrderCancelled, model.OrderFailed:
				m.void(p, p.ProtectiveOrderID, "protective order "+string(order.Status))
				return
			}
		}

		if p.TakeProfit > 0 {
			if est := p.h.PriceEstimate(); est >= p.TakeProfit {
				m.takeProfitExit(ctx, p, est)
				return
			}
		}

		// Wake on the next candle close, with a bounded idle interval as a
		// safety net. Stop is observed only here: on shutdown the resting
		// stop-loss is deliberately left working so the position stays
		// protected across the restart.
		idle := time.NewTimer(m.cfg.MonitorIdleInterval)
		select {
		case <-ctx.Done():
			idle.Stop()
			log.Printf("[position] %s: stopping; leaving resting stop-loss %s on the exchange",
				p.Symbol, p.ProtectiveOrderID)
			return
		case <-p.h.Signal.Waiter():
			idle.Stop()
		case <-idle.C:
		}

		// Pace rechecks so a persistently set signal cannot spin the loop.
		select {
		case <-ctx.Done():
			log.Printf("[position] %s: stopping; leaving resting stop-loss %s on the exchange",
				p.Symbol, p.ProtectiveOrderID)
			return
		case <-time.After(m.cfg.FillPollInterval):
		}
	}
}

// takeProfitExit cancels the resting stop-loss, then market-sells the full
// quantity. If the cancel loses the race because the stop already filled,
// the exit is settled as a stop-loss instead of double-selling.
func (m *Manager) takeProfitExit(ctx context.Context, p *Position, est float64) {
	if err := m.client.CancelOrder(ctx, p.ProtectiveOrderID); err != nil {
		order, statErr := m.client.GetOrder(ctx, p.ProtectiveOrderID)
		if statErr == nil && order.Status == model.OrderFilled {
			log.Printf("[position] %s: stop-loss filled before take-profit cancel; settling as stop-loss", p.Symbol)
			m.settle(p, "stop-loss filled")
			return
		}
		log.Printf("[position] %s: cancel of stop-loss %s failed: %v (proceeding with market exit)",
			p.Symbol, p.ProtectiveOrderID, err)
	}

	sell, err := m.submitWithRetry(ctx, model.OrderRequest{
		ClientOrderID: m.newClientOrderID(p.Symbol),
		Symbol:        p.Symbol,
		Side:          model.SideSell,
		Type:          model.TypeMarket,
		AssetQty:      p.Qty,
	})
	if err != nil {
		m.void(p, p.ProtectiveOrderID, fmt.Sprintf("take-profit market sell failed: %v", err))
		return
	}
	if err := m.waitFill(sell.ID); err != nil {
		m.void(p, sell.ID, fmt.Sprintf("take-profit fill: %v", err))
		return
	}

	gain := (est - p.EntryPrice) * p.Qty
	log.Printf("[position] %s: take-profit executed at %.4f, realized %.2f (order %s)",
		p.Symbol, est, gain, sell.ID)
	m.settle(p, "take-profit filled")
}

// submitWithRetry places an order, retrying transient submission failures
// with a bounded budget. An explicit failed/cancelled response is terminal
// immediately.
func (m *Manager) submitWithRetry(ctx context.Context, req model.OrderRequest) (model.Order, error) {
	var lastErr error
	for attempt := 0; attempt < m.cfg.SubmitAttempts; attempt++ {
		if attempt > 0 {
			if m.OnRetry != nil {
				m.OnRetry()
			}
			time.Sleep(m.cfg.SubmitInterval)
		}
		order, err := m.client.PlaceOrder(ctx, req)
		if err != nil {
			lastErr = err
			log.Printf("[position] %s: order submission attempt %d/%d failed: %v",
				req.Symbol, attempt+1, m.cfg.SubmitAttempts, err)
			continue
		}
		if order.Status == model.OrderFailed || order.Status == model.OrderCancelled {
			return model.Order{}, fmt.Errorf("order %s %s: %s", order.ID, order.Status, order.Detail)
		}
		return order, nil
	}
	return model.Order{}, fmt.Errorf("submission retries exhausted: %w", lastErr)
}

// waitFill polls order status until it fills. Transient errors consume a
// small budget; explicit cancelled/failed is terminal. The wait deliberately
// does not observe the process stop signal: a submitted order is never
// abandoned mid-flight.
func (m *Manager) waitFill(orderID string) error {
	errBudget := m.cfg.FillErrorBudget
	for {
		order, err := m.client.GetOrder(context.Background(), orderID)
		if err != nil {
			if errBudget == 0 {
				return fmt.Errorf("fill-wait error budget exhausted: %w", err)
			}
			errBudget--
			if m.OnRetry != nil {
				m.OnRetry()
			}
			time.Sleep(m.cfg.FillPollInterval)
			continue
		}
		switch order.Status {
		case model.OrderFilled:
			return nil
		case model.OrderCancelled, model.OrderFailed:
			return fmt.Errorf("order %s %s: %s", orderID, order.Status, order.Detail)
		}
		log.Printf("[position] %s: waiting to fill, state is %s", orderID, order.Status)
		time.Sleep(m.cfg.FillPollInterval)
	}
}

func (m *Manager) getAccountWithRetry(ctx context.Context) (model.Account, error) {
	var lastErr error
	for attempt := 0; attempt <= m.cfg.FillErrorBudget; attempt++ {
		if attempt > 0 {
			time.Sleep(m.cfg.FillPollInterval)
		}
		account, err := m.client.GetAccount(ctx)
		if err == nil {
			return account, nil
		}
		lastErr = err
	}
	return model.Account{}, lastErr
}

// settle releases the instrument's position slot and marks the terminal
// Settled state.
func (m *Manager) settle(p *Position, reason string) {
	log.Printf("[position] %s: settled (%s)", p.Symbol, reason)
	if m.tracker != nil {
		if err := m.tracker.RecordExit(p, "settled", reason); err != nil {
			log.Printf("[position] %s: journal exit record failed: %v", p.Symbol, err)
		}
	}
	if m.OnSettled != nil {
		m.OnSettled()
	}
	p.h.ReleasePosition()
	p.setState(model.StateSettled)
	close(p.done)
}

// void marks the terminal Voided state. Every void logs the causing order id
// and reason; no transition silently loses track of an order.
func (m *Manager) void(p *Position, orderID, reason string) {
	log.Printf("[position] VOIDING %s [order_id=%q]: %s", p.Symbol, orderID, reason)
	if m.tracker != nil {
		if err := m.tracker.RecordExit(p, "voided", reason); err != nil {
			log.Printf("[position] %s: journal void record failed: %v", p.Symbol, err)
		}
	}
	if m.OnVoided != nil {
		m.OnVoided()
	}
	p.h.ReleasePosition()
	p.setState(model.StateVoided)
	close(p.done)
}

// roundQty rounds an asset quantity to 6 decimal places, the exchange's
// quantity precision.
func roundQty(q float64) float64 {
	return math.Round(q*1e6) / 1e6
}
