package handlers

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/atharvakonge/finance/internal/models"
)

// ErrProcessorStopped is returned for trades submitted after Stop.
var ErrProcessorStopped = errors.New("trade processor stopped")

// TradeExecutor settles one order atomically.
type TradeExecutor interface {
	ExecuteTrade(ctx context.Context, o models.Order) (models.Trade, error)
}

type tradeResult struct {
	trade models.Trade
	err   error
}

// tradeRequest is a trade waiting in the queue
type tradeRequest struct {
	ctx      context.Context
	order    models.Order
	resultCh chan tradeResult // buffered, the worker never blocks on it
}

// TradeProcessor runs trades on a fixed pool of workers. Trades of one
// user are serialized; trades of different users run in parallel.
type TradeProcessor struct {
	workers    int
	tradeQueue chan tradeRequest
	stopCh     chan struct{}
	doneCh     chan struct{}
	stopOnce   sync.Once
	wg         sync.WaitGroup
	locks      *models.UserLocks
	exec       TradeExecutor
	log        *zap.Logger
}

// NewTradeProcessor creates a processor with the given number of workers.
func NewTradeProcessor(exec TradeExecutor, workers int, log *zap.Logger) *TradeProcessor {
	if workers < 1 {
		workers = 1
	}
	return &TradeProcessor{
		workers:    workers,
		tradeQueue: make(chan tradeRequest, 100),
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
		locks:      models.NewUserLocks(),
		exec:       exec,
		log:        log,
	}
}

// Start launches the workers.
func (tp *TradeProcessor) Start() {
	for i := 0; i < tp.workers; i++ {
		tp.wg.Add(1)
		go tp.worker(i)
	}
	tp.log.Info("trade workers started", zap.Int("workers", tp.workers))
}

// Stop lets in-flight trades finish and waits for the workers to exit.
func (tp *TradeProcessor) Stop() {
	tp.stopOnce.Do(func() {
		close(tp.stopCh)
		tp.wg.Wait()
		close(tp.doneCh)
		tp.log.Info("trade processor stopped")
	})
}

func (tp *TradeProcessor) worker(id int) {
	defer tp.wg.Done()

	for {
		select {
		case <-tp.stopCh:
			return

		case req := <-tp.tradeQueue:
			tp.log.Debug("processing trade",
				zap.Int("worker", id),
				zap.Int64("user_id", req.order.UserID),
				zap.String("side", string(req.order.Side)),
				zap.String("symbol", req.order.Symbol),
				zap.Int64("quantity", req.order.Quantity))

			req.resultCh <- tp.processTrade(req)
		}
	}
}

func (tp *TradeProcessor) processTrade(req tradeRequest) tradeResult {
	// caller already gave up
	if err := req.ctx.Err(); err != nil {
		return tradeResult{err: err}
	}

	tp.locks.Lock(req.order.UserID)
	defer tp.locks.Unlock(req.order.UserID)

	trade, err := tp.exec.ExecuteTrade(req.ctx, req.order)
	if err != nil {
		return tradeResult{err: err}
	}
	return tradeResult{trade: trade}
}

// SubmitTrade queues o and waits for its result.
func (tp *TradeProcessor) SubmitTrade(ctx context.Context, o models.Order) (models.Trade, error) {
	req := tradeRequest{
		ctx:      ctx,
		order:    o,
		resultCh: make(chan tradeResult, 1),
	}

	select {
	case tp.tradeQueue <- req:
	case <-ctx.Done():
		return models.Trade{}, ctx.Err()
	case <-tp.stopCh:
		return models.Trade{}, ErrProcessorStopped
	}

	select {
	case res := <-req.resultCh:
		return res.trade, res.err
	case <-ctx.Done():
		return models.Trade{}, ctx.Err()
	case <-tp.doneCh:
		// a worker may have answered just before exiting
		select {
		case res := <-req.resultCh:
			return res.trade, res.err
		default:
			return models.Trade{}, ErrProcessorStopped
		}
	}
}
