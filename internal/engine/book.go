package engine

import (
	"sync"

	"github.com/tidwall/btree"
	"go.uber.org/zap"

	"github.com/aureliax/dexcore/internal/dex/orderid"
	"github.com/aureliax/dexcore/internal/ledger"
)

// restingOrder is one order resting in a book side.
type restingOrder struct {
	id            orderid.OrderID
	user          ledger.Address
	side          orderid.Side
	price         uint64
	baseRemaining uint64
}

func (o *restingOrder) quoteRemaining() uint64 {
	return o.baseRemaining * o.price
}

// priceLevel is a FIFO queue of orders at one price.
type priceLevel struct {
	price  uint64
	orders []*restingOrder
}

type book struct {
	authority ledger.Address
	bids      ledger.Address
	asks      ledger.Address
	bidLevels *btree.Map[uint64, *priceLevel]
	askLevels *btree.Map[uint64, *priceLevel]
	orders    map[orderid.OrderID]*restingOrder
	seq       uint32
	events    []Event
}

// InProcess is the reference matching engine: price-time priority over
// btree-indexed price levels, one event queue per book. It implements the
// Engine contract synchronously and in-process.
type InProcess struct {
	mu     sync.Mutex
	books  map[ledger.Address]*book
	logger *zap.Logger
}

// NewInProcess creates an empty in-process engine.
func NewInProcess(logger *zap.Logger) *InProcess {
	return &InProcess{books: make(map[ledger.Address]*book), logger: logger}
}

// CreateBook registers a new book keyed by its orderbook address, bound to
// its side structures and its market authority.
func (e *InProcess) CreateBook(bookKey, bids, asks, authority ledger.Address) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.books[bookKey]; ok {
		return ErrBookExists
	}
	e.books[bookKey] = &book{
		authority: authority,
		bids:      bids,
		asks:      asks,
		bidLevels: btree.NewMap[uint64, *priceLevel](32),
		askLevels: btree.NewMap[uint64, *priceLevel](32),
		orders:    make(map[orderid.OrderID]*restingOrder),
	}
	e.logger.Info("order book created",
		zap.String("book", bookKey.String()),
		zap.String("authority", authority.String()))
	return nil
}

func (e *InProcess) lookup(bookKey, bids, asks ledger.Address, auth SignerCapability) (*book, error) {
	b, ok := e.books[bookKey]
	if !ok {
		return nil, ErrUnknownBook
	}
	if b.bids != bids || b.asks != asks {
		return nil, ErrBadSideAccount
	}
	if b.authority != auth.Address {
		return nil, ErrBadAuthority
	}
	return b, nil
}

// NewOrder places a limit order: crosses against the opposite side at
// price-time priority, emits fill events for both makers and the taker, and
// rests any remainder. The resulting summary is posted into the request's
// result region before returning.
func (e *InProcess) NewOrder(req *NewOrderRequest) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	b, err := e.lookup(req.Orderbook, req.Bids, req.Asks, req.Authority)
	if err != nil {
		return err
	}
	// The book mutates before the summary posts. An unusable region must be
	// rejected here, while the book is still untouched, or a failed post
	// would leave the book ahead of the caller's rolled-back ledger.
	if err := CheckRegion(req.ResultRegion); err != nil {
		return err
	}

	remaining := req.MaxBaseQty
	remaining = b.match(req, remaining)

	summary := OrderSummary{Side: req.Side}
	if remaining > 0 {
		b.seq++
		order := &restingOrder{
			id:            orderid.New(req.Side, req.LimitPrice, b.seq),
			user:          req.UserAccount,
			side:          req.Side,
			price:         req.LimitPrice,
			baseRemaining: remaining,
		}
		b.rest(order)
		summary.OrderID = order.id
		summary.BaseQty = remaining
		summary.QuoteQty = order.quoteRemaining()
	}
	return PostSummary(req.ResultRegion, summary)
}

// match crosses a taker order against the opposite side and returns the
// unmatched base remainder.
func (b *book) match(req *NewOrderRequest, remaining uint64) uint64 {
	opposite := b.askLevels
	if req.Side == orderid.Ask {
		opposite = b.bidLevels
	}
	for remaining > 0 {
		var best *priceLevel
		if req.Side == orderid.Bid {
			opposite.Ascend(0, func(_ uint64, lvl *priceLevel) bool {
				best = lvl
				return false
			})
			if best == nil || best.price > req.LimitPrice {
				break
			}
		} else {
			opposite.Descend(^uint64(0), func(_ uint64, lvl *priceLevel) bool {
				best = lvl
				return false
			})
			if best == nil || best.price < req.LimitPrice {
				break
			}
		}
		maker := best.orders[0]
		qty := remaining
		if maker.baseRemaining < qty {
			qty = maker.baseRemaining
		}
		maker.baseRemaining -= qty
		remaining -= qty

		// Maker settles at the maker's price; the taker's unlock is priced
		// at the taker's own limit so the exact locked amount unwinds.
		b.events = append(b.events, Event{
			Kind:        EventFill,
			UserAccount: maker.user,
			OrderID:     maker.id,
			Side:        maker.side,
			BaseQty:     qty,
			QuoteQty:    qty * maker.price,
		})
		takerQuote := qty * maker.price
		if req.Side == orderid.Bid {
			takerQuote = qty * req.LimitPrice
		}
		b.events = append(b.events, Event{
			Kind:        EventFill,
			UserAccount: req.UserAccount,
			Side:        req.Side,
			BaseQty:     qty,
			QuoteQty:    takerQuote,
		})

		if maker.baseRemaining == 0 {
			b.unrest(maker)
			b.events = append(b.events, Event{
				Kind:        EventOut,
				UserAccount: maker.user,
				OrderID:     maker.id,
				Side:        maker.side,
			})
		}
	}
	return remaining
}

func (b *book) levels(side orderid.Side) *btree.Map[uint64, *priceLevel] {
	if side == orderid.Bid {
		return b.bidLevels
	}
	return b.askLevels
}

func (b *book) rest(order *restingOrder) {
	levels := b.levels(order.side)
	lvl, ok := levels.Get(order.price)
	if !ok {
		lvl = &priceLevel{price: order.price}
		levels.Set(order.price, lvl)
	}
	lvl.orders = append(lvl.orders, order)
	b.orders[order.id] = order
}

func (b *book) unrest(order *restingOrder) {
	levels := b.levels(order.side)
	if lvl, ok := levels.Get(order.price); ok {
		for i, o := range lvl.orders {
			if o.id == order.id {
				lvl.orders = append(lvl.orders[:i], lvl.orders[i+1:]...)
				break
			}
		}
		if len(lvl.orders) == 0 {
			levels.Delete(order.price)
		}
	}
	delete(b.orders, order.id)
}

// Cancel removes a resting order and posts its unfilled remainder into the
// result region. On any failure the region is left untouched.
func (e *InProcess) Cancel(req *CancelRequest) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	b, err := e.lookup(req.Orderbook, req.Bids, req.Asks, req.Authority)
	if err != nil {
		return err
	}
	// Same ordering constraint as NewOrder: reject an unusable region before
	// the order leaves the book.
	if err := CheckRegion(req.ResultRegion); err != nil {
		return err
	}
	order, ok := b.orders[req.OrderID]
	if !ok {
		return ErrOrderNotFound
	}
	b.unrest(order)
	e.logger.Debug("order cancelled",
		zap.String("book", req.Orderbook.String()),
		zap.Uint64("order_id", uint64(order.id)),
		zap.String("side", order.side.String()))
	return PostSummary(req.ResultRegion, OrderSummary{
		Side:     order.side,
		OrderID:  order.id,
		BaseQty:  order.baseRemaining,
		QuoteQty: order.quoteRemaining(),
	})
}

// PopEvents drains up to max events from the book's event queue.
func (e *InProcess) PopEvents(bookKey ledger.Address, max uint64) ([]Event, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	b, ok := e.books[bookKey]
	if !ok {
		return nil, ErrUnknownBook
	}
	n := uint64(len(b.events))
	if max < n {
		n = max
	}
	out := make([]Event, n)
	copy(out, b.events[:n])
	b.events = b.events[n:]
	return out, nil
}
