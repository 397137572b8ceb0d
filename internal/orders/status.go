package orders

type Status string

const (
	StatusPending    Status = "pending"
	StatusConfirmed  Status = "confirmed"
	StatusProcessing Status = "processing"
	StatusShipped    Status = "shipped"
	StatusDelivered  Status = "delivered"
	StatusCancelled  Status = "cancelled"
	StatusRefunded   Status = "refunded"
	StatusFailed     Status = "failed"
)

var validNext = map[Status]map[Status]bool{
	StatusPending:    {StatusConfirmed: true, StatusCancelled: true, StatusFailed: true},
	StatusConfirmed:  {StatusProcessing: true, StatusCancelled: true},
	StatusProcessing: {StatusShipped: true, StatusCancelled: true},
	StatusShipped:    {StatusDelivered: true},
	StatusDelivered:  {StatusRefunded: true},
	StatusCancelled:  {},
	StatusRefunded:   {},
	StatusFailed:     {StatusPending: true},
}

func CanTransition(from, to Status) bool {
	return validNext[from][to]
}

func (s Status) Valid() bool {
	_, ok := validNext[s]
	return ok
}

// Terminal statuses are never left by derived promotion. failed can still be
// moved back to pending by hand.
func (s Status) Terminal() bool {
	return s == StatusCancelled || s == StatusRefunded || s == StatusFailed
}

// Cancellable reports whether CancelOrder may act on an order in s.
func (s Status) Cancellable() bool {
	return s == StatusPending || s == StatusConfirmed
}

type PaymentStatus string

const (
	PaymentPending           PaymentStatus = "pending"
	PaymentPaid              PaymentStatus = "paid"
	PaymentFailed            PaymentStatus = "failed"
	PaymentRefunded          PaymentStatus = "refunded"
	PaymentPartiallyRefunded PaymentStatus = "partially_refunded"
)

// Settled reports whether money was captured for the order and not fully
// returned.
func (p PaymentStatus) Settled() bool {
	return p == PaymentPaid || p == PaymentPartiallyRefunded
}

type ItemStatus string

const (
	ItemPending     ItemStatus = "pending"
	ItemConfirmed   ItemStatus = "confirmed"
	ItemProcessing  ItemStatus = "processing"
	ItemReadyToShip ItemStatus = "ready_to_ship"
	ItemShipped     ItemStatus = "shipped"
	ItemDelivered   ItemStatus = "delivered"
	ItemReturned    ItemStatus = "returned"
	ItemCancelled   ItemStatus = "cancelled"
)

var validItemNext = map[ItemStatus]map[ItemStatus]bool{
	ItemPending:     {ItemConfirmed: true, ItemCancelled: true},
	ItemConfirmed:   {ItemProcessing: true, ItemCancelled: true},
	ItemProcessing:  {ItemReadyToShip: true, ItemCancelled: true},
	ItemReadyToShip: {ItemShipped: true},
	ItemShipped:     {ItemDelivered: true},
	ItemDelivered:   {ItemReturned: true},
	ItemReturned:    {},
	ItemCancelled:   {},
}

func CanTransitionItem(from, to ItemStatus) bool {
	return validItemNext[from][to]
}

func (s ItemStatus) Valid() bool {
	_, ok := validItemNext[s]
	return ok
}

// DeriveStatus returns the order status implied by its items when they all
// share a fulfilment stage: all delivered, all shipped or delivered, or all
// cancelled. ok is false otherwise.
func DeriveStatus(items []Item) (Status, bool) {
	if len(items) == 0 {
		return "", false
	}
	delivered, shipped, cancelled := 0, 0, 0
	for _, it := range items {
		switch it.Status {
		case ItemDelivered:
			delivered++
			shipped++
		case ItemShipped:
			shipped++
		case ItemCancelled:
			cancelled++
		}
	}
	switch n := len(items); {
	case delivered == n:
		return StatusDelivered, true
	case shipped == n:
		return StatusShipped, true
	case cancelled == n:
		return StatusCancelled, true
	}
	return "", false
}

var rank = map[Status]int{
	StatusPending:    0,
	StatusConfirmed:  1,
	StatusProcessing: 2,
	StatusShipped:    3,
	StatusDelivered:  4,
}

// Promotes reports whether a derived status may replace current. Promotion
// never leaves a terminal status and never moves fulfilment backwards.
func Promotes(current, derived Status) bool {
	if current == derived || current.Terminal() {
		return false
	}
	if derived == StatusCancelled {
		return CanTransition(current, StatusCancelled)
	}
	r, ok := rank[derived]
	return ok && r > rank[current]
}
