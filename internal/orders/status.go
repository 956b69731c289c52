package orders

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusCancelled Status = "CANCELLED"
)

// Cancellation is the only transition; cancelled is terminal. Rows are
// never deleted, so the ledger keeps its audit history.
var validNext = map[Status]map[Status]bool{
	StatusPending:   {StatusCancelled: true},
	StatusCancelled: {},
}

func CanTransition(from, to Status) bool {
	return validNext[from][to]
}
