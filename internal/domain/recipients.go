package domain

// DefaultMaxRecipients is the hard cap on a RecipientSet.
const DefaultMaxRecipients = 10000

// RecipientSet is an insertion-ordered set of lowercase email addresses with
// a fixed capacity. It is not safe for concurrent use.
type RecipientSet struct {
	order []string
	index map[string]struct{}
	limit int
}

// NewRecipientSet creates an empty set holding at most limit addresses.
// A non-positive limit means DefaultMaxRecipients.
func NewRecipientSet(limit int) *RecipientSet {
	if limit <= 0 {
		limit = DefaultMaxRecipients
	}
	return &RecipientSet{
		index: make(map[string]struct{}),
		limit: limit,
	}
}

// Add inserts addr and reports whether it was new. Adds beyond the capacity
// are ignored and return false.
func (s *RecipientSet) Add(addr string) bool {
	if _, ok := s.index[addr]; ok {
		return false
	}
	if len(s.order) >= s.limit {
		return false
	}
	s.index[addr] = struct{}{}
	s.order = append(s.order, addr)
	return true
}

// Merge adds every address of other in its order, stopping at capacity.
func (s *RecipientSet) Merge(other *RecipientSet) {
	if other == nil {
		return
	}
	for _, addr := range other.order {
		if s.Full() {
			return
		}
		s.Add(addr)
	}
}

// Contains reports whether addr is in the set.
func (s *RecipientSet) Contains(addr string) bool {
	_, ok := s.index[addr]
	return ok
}

// Full reports whether the set reached its capacity.
func (s *RecipientSet) Full() bool { return len(s.order) >= s.limit }

// Len returns the number of addresses.
func (s *RecipientSet) Len() int { return len(s.order) }

// Limit returns the capacity.
func (s *RecipientSet) Limit() int { return s.limit }

// Emails returns a copy of the addresses in first-seen order.
func (s *RecipientSet) Emails() []string {
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}
