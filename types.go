package offheap

// Sequence is the ordered collection surface. *mmlist.List implements it.
type Sequence[V any] interface {
	Size() int
	IsEmpty() bool
	Get(i int) (V, error)
	Set(i int, value V) (V, error)
	Insert(i int, value V) error
	Append(value V) error
	RemoveAt(i int) (V, error)
	Remove(value V) (bool, error)
	Contains(value V) (bool, error)
	IndexOf(value V) (int, error)
	LastIndexOf(value V) (int, error)
	Slice(from, to int) ([]V, error)
	Items() (ItemIterator[V], error)
	Clear() error
}

// Associative is the map collection surface. *mmmap.Map implements it.
type Associative[K comparable, V any] interface {
	Size() int
	IsEmpty() bool
	Get(key K) (V, bool, error)
	Put(key K, value V) error
	Remove(key K) (V, bool, error)
	Has(key K) bool
	ContainsValue(value V) (bool, error)
	PutAll(entries map[K]V) error
	Keys() []K
	Values() ([]V, error)
	Iterate() (Iterator[K, V], error)
	Clear() error
}

// Iterator yields one key value pair per call. The returned iterator is
// nil once the sequence is exhausted or an error occurred.
type Iterator[K, V any] func() (K, V, error, Iterator[K, V])

// ItemIterator is Iterator for collections of single items.
type ItemIterator[V any] func() (V, error, ItemIterator[V])

// Do runs do on every pair produced by the iterator run returns, stopping
// at the first error.
func Do[K, V any](run func() (Iterator[K, V], error), do func(key K, value V) error) error {
	kvi, err := run()
	if err != nil {
		return err
	}
	var key K
	var value V
	for key, value, err, kvi = kvi(); kvi != nil; key, value, err, kvi = kvi() {
		e := do(key, value)
		if e != nil {
			return e
		}
	}
	return err
}

func DoItem[V any](run func() (ItemIterator[V], error), do func(V) error) error {
	it, err := run()
	if err != nil {
		return err
	}
	var item V
	for item, err, it = it(); it != nil; item, err, it = it() {
		e := do(item)
		if e != nil {
			return e
		}
	}
	return err
}

// Collect drains an item iterator into a slice.
func Collect[V any](run func() (ItemIterator[V], error)) ([]V, error) {
	items := make([]V, 0)
	err := DoItem(run, func(item V) error {
		items = append(items, item)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return items, nil
}
