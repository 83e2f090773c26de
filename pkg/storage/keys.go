package storage

import "fmt"

// Pebble key schema. All values are JSON.
//
//   o:<orderID>                     → Order
//   l:<orderID>:<20-digit-unixnano> → ExecutionLog (lexicographic = chronological)
//   a:<wallet>                      → wallet.Account
//   c:<wallet>                      → advisor.Config
const (
	prefixOrder   = "o:"
	prefixLog     = "l:"
	prefixAccount = "a:"
	prefixAdvisor = "c:"
)

func orderKey(id string) []byte { return []byte(prefixOrder + id) }

// logKey zero-pads the timestamp so a prefix scan walks entries in
// append order.
func logKey(orderID string, unixNano int64, logID string) []byte {
	return []byte(fmt.Sprintf("%s%s:%020d:%s", prefixLog, orderID, unixNano, logID))
}

func logPrefix(orderID string) []byte { return []byte(prefixLog + orderID + ":") }

func accountKey(wallet string) []byte { return []byte(prefixAccount + wallet) }

func advisorKey(wallet string) []byte { return []byte(prefixAdvisor + wallet) }

// keyUpperBound returns the exclusive upper bound for a prefix scan.
func keyUpperBound(prefix []byte) []byte {
	bound := make([]byte, len(prefix))
	copy(bound, prefix)
	bound[len(bound)-1]++
	return bound
}
