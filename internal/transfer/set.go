package transfer

// Summary is the aggregate view of the current item set. It is always derived
// from the items and never stored.
type Summary struct {
	Total      int
	Success    int
	Failed     int
	InProgress int // encoding + uploading
}

// Done reports whether every item reached a terminal state.
func (s Summary) Done() bool {
	return s.Success+s.Failed == s.Total
}

// itemSet is an immutable snapshot of one selection. Writers build a new set
// and swap it in; readers load the current pointer without locking.
type itemSet struct {
	gen   uint64   // Selection generation; bumped on every Select
	order []string // IDs in selection order
	items map[string]*Item
}

func newItemSet(gen uint64, items []Item) *itemSet {
	s := &itemSet{
		gen:   gen,
		order: make([]string, 0, len(items)),
		items: make(map[string]*Item, len(items)),
	}
	for i := range items {
		it := items[i]
		s.order = append(s.order, it.ID)
		s.items[it.ID] = &it
	}
	return s
}

// get returns a copy of the item with id.
func (s *itemSet) get(id string) (Item, bool) {
	it, ok := s.items[id]
	if !ok {
		return Item{}, false
	}
	return *it, true
}

// with returns a new set with the given items replaced by ID. order is shared;
// it never changes within a generation.
func (s *itemSet) with(items ...Item) *itemSet {
	next := &itemSet{
		gen:   s.gen,
		order: s.order,
		items: make(map[string]*Item, len(s.items)),
	}
	for k, v := range s.items {
		next.items[k] = v
	}
	for i := range items {
		it := items[i]
		next.items[it.ID] = &it
	}
	return next
}

// ordered returns copies of all items in selection order.
func (s *itemSet) ordered() []Item {
	out := make([]Item, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, *s.items[id])
	}
	return out
}

// ids returns the IDs of items matching keep, in selection order.
func (s *itemSet) ids(keep func(Item) bool) []string {
	var out []string
	for _, id := range s.order {
		if keep == nil || keep(*s.items[id]) {
			out = append(out, id)
		}
	}
	return out
}

func (s *itemSet) summary() Summary {
	sum := Summary{Total: len(s.order)}
	for _, it := range s.items {
		switch {
		case it.Status == StatusSuccess:
			sum.Success++
		case it.Status == StatusError:
			sum.Failed++
		case it.Status.Active():
			sum.InProgress++
		}
	}
	return sum
}
