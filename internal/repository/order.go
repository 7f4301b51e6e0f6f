package repository

// Order is the listing order a store applies before returning tasks.
// Undated tasks sort last for both due-date orders.
type Order int

const (
	OrderCreatedDesc Order = iota
	OrderCreatedAsc
	OrderDueAsc
	OrderDueDesc
)

func (o Order) String() string {
	switch o {
	case OrderCreatedAsc:
		return "created_asc"
	case OrderDueAsc:
		return "due_asc"
	case OrderDueDesc:
		return "due_desc"
	default:
		return "created_desc"
	}
}
