/*
Offheap

Collections whose elements live outside of the Go heap. A large or long
lived collection of small Go values costs the garbage collector a lot of
pointers to trace. The collections here encode each element into a byte
record and keep the records in an anonymous memory mapping, so the heap
only holds a small index per element.

The major components:

1. fmap - an anonymous memory mapping that can be grown, shrunk and
pinned while in use.

2. varchar - a variable length chunk allocator on top of an fmap Region.
Freed chunks are reused first fit, split and coalesced before the
region is grown.

3. storage - the Engine, a keyed store of byte records built from the
two above. It reports its region to Prometheus and logs growth with
go-kit/log. It is not safe for concurrent use.

4. converter - turns values into records and back. The default Graph
codec handles shared pointers and cycles.

5. mmlist and mmmap - an ordered list and a map over an Engine. Each
collection carries its own guard (a reader/writer lock) so reads run in
parallel and writes are exclusive.

6. slice and errors - unsafe views of mapped bytes and a small error
taxonomy which keeps a stack trace with every error.

The collections implement the Sequence and Associative interfaces of
this package and iterate with the closure iterators defined here:

	err := offheap.DoItem(list.Items, func(item string) error {
		fmt.Println(item)
		return nil
	})

offheap-bench drives the collections with a concurrent workload and
prints the engine metrics.
*/
package offheap
