package converter

import (
	"testing"

	"github.com/go-faker/faker/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/timtadh/offheap/errors"
)

type record struct {
	Name    string
	Email   string `faker:"email"`
	Age     int
	Score   float64
	Tags    []string
	Counts  map[string]int
	Payload []byte
	Active  bool
	hidden  int
}

type node struct {
	Value int
	Next  *node
}

type tree struct {
	Left, Right *leaf
}

type leaf struct {
	Label string
}

type shape interface {
	Area() float64
}

type square struct {
	Side float64
}

func (s square) Area() float64 { return s.Side * s.Side }

type drawing struct {
	Shapes []shape
	Meta   any
}

func init() {
	Register(square{})
	Register(record{})
}

func roundTrip[V any](t *testing.T, c Converter[V], value V) V {
	t.Helper()
	data, err := c.Encode(value)
	require.NoError(t, err)
	out, err := c.Decode(data)
	require.NoError(t, err)
	return out
}

func TestGraphFakedRecords(t *testing.T) {
	c := Default[record]()
	for i := 0; i < 50; i++ {
		var r record
		require.NoError(t, faker.FakeData(&r))
		r.hidden = 0
		assert.Equal(t, r, roundTrip(t, c, r))
	}
}

func TestGraphUnexportedFieldsSkipped(t *testing.T) {
	r := record{Name: "a", hidden: 7}
	out := roundTrip[record](t, Graph[record]{}, r)
	assert.Equal(t, "a", out.Name)
	assert.Equal(t, 0, out.hidden)
}

func TestGraphBasics(t *testing.T) {
	assert.Equal(t, 42, roundTrip[int](t, Graph[int]{}, 42))
	assert.Equal(t, -42, roundTrip[int](t, Graph[int]{}, -42))
	assert.Equal(t, "", roundTrip[string](t, Graph[string]{}, ""))
	assert.Equal(t, "héllo", roundTrip[string](t, Graph[string]{}, "héllo"))
	assert.Equal(t, 3+4i, roundTrip[complex128](t, Graph[complex128]{}, 3+4i))
	assert.Equal(t, [3]uint16{1, 2, 3}, roundTrip[[3]uint16](t, Graph[[3]uint16]{}, [3]uint16{1, 2, 3}))
	assert.Equal(t, []byte{}, roundTrip[[]byte](t, Graph[[]byte]{}, []byte{}))
	assert.Equal(t, struct{}{}, roundTrip[struct{}](t, Graph[struct{}]{}, struct{}{}))
}

func TestGraphNil(t *testing.T) {
	c := Graph[*record]{}
	data, err := c.Encode(nil)
	require.NoError(t, err)
	assert.Nil(t, data)
	out, err := c.Decode(nil)
	require.NoError(t, err)
	assert.Nil(t, out)

	s := Graph[[]int]{}
	data, err = s.Encode([]int{})
	require.NoError(t, err)
	assert.NotNil(t, data)
	empty, err := s.Decode(data)
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Len(t, empty, 0)

	assert.True(t, IsNil[map[string]int](nil))
	assert.False(t, IsNil(0))
}

func TestGraphSharedReferences(t *testing.T) {
	shared := &leaf{Label: "shared"}
	out := roundTrip[tree](t, Graph[tree]{}, tree{Left: shared, Right: shared})
	require.NotNil(t, out.Left)
	assert.Same(t, out.Left, out.Right)
	assert.Equal(t, "shared", out.Left.Label)

	distinct := roundTrip[tree](t, Graph[tree]{}, tree{Left: &leaf{"a"}, Right: &leaf{"a"}})
	assert.NotSame(t, distinct.Left, distinct.Right)
}

func TestGraphCycles(t *testing.T) {
	a := &node{Value: 1}
	b := &node{Value: 2, Next: a}
	a.Next = b
	out := roundTrip[*node](t, Graph[*node]{}, a)
	assert.Equal(t, 1, out.Value)
	assert.Equal(t, 2, out.Next.Value)
	assert.Same(t, out, out.Next.Next)

	self := map[string]any{}
	self["self"] = self
	m := roundTrip[map[string]any](t, Graph[map[string]any]{}, self)
	inner, ok := m["self"].(map[string]any)
	require.True(t, ok)
	inner["mark"] = true
	assert.Equal(t, true, m["mark"])
}

type spans struct {
	A, B, C []int
}

type chain []chain

func TestGraphSharedSlices(t *testing.T) {
	backing := []int{1, 2, 3}
	c := Graph[spans]{}
	data, err := c.Encode(spans{A: backing, B: backing, C: backing[1:]})
	require.NoError(t, err)
	out, err := c.Decode(data)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, out.A)
	assert.Equal(t, []int{2, 3}, out.C)
	require.Len(t, out.B, 3)
	assert.Same(t, &out.A[0], &out.B[0])
	out.A[0] = 10
	assert.Equal(t, 10, out.B[0])

	b := Graph[[][]byte]{}
	word := []byte("word")
	data, err = b.Encode([][]byte{word, word, nil, {}})
	require.NoError(t, err)
	words, err := b.Decode(data)
	require.NoError(t, err)
	require.Len(t, words, 4)
	assert.Equal(t, []byte("word"), words[0])
	assert.Same(t, &words[0][0], &words[1][0])
	assert.Nil(t, words[2])
	assert.NotNil(t, words[3])
	assert.Empty(t, words[3])
}

func TestGraphSliceCycles(t *testing.T) {
	loop := make([]any, 2)
	loop[0] = loop
	loop[1] = "end"
	c := Graph[[]any]{}
	data, err := c.Encode(loop)
	require.NoError(t, err)
	out, err := c.Decode(data)
	require.NoError(t, err)
	require.Len(t, out, 2)
	inner, ok := out[0].([]any)
	require.True(t, ok)
	assert.Same(t, &out[0], &inner[0])
	assert.Equal(t, "end", inner[1])

	ch := make(chain, 1)
	ch[0] = ch
	cc := Graph[chain]{}
	data, err = cc.Encode(ch)
	require.NoError(t, err)
	got, err := cc.Decode(data)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Len(t, got[0], 1)
	assert.Same(t, &got[0], &got[0][0])
}

func TestGraphInterfaces(t *testing.T) {
	d := drawing{
		Shapes: []shape{square{2}, nil, square{3}},
		Meta:   map[string]any{"n": 1, "tags": []string{"x"}},
	}
	out := roundTrip[drawing](t, Graph[drawing]{}, d)
	assert.Equal(t, d, out)
	assert.Equal(t, 4.0, out.Shapes[0].Area())

	var unregistered any = struct{ X int }{1}
	_, err := Graph[any]{}.Encode(unregistered)
	assert.True(t, errors.Is(err, errors.ErrCodec))
}

func TestGraphDeterministic(t *testing.T) {
	c := Graph[map[string]int]{}
	m := map[string]int{}
	for i := 0; i < 100; i++ {
		m[faker.Word()+faker.Word()] = i
	}
	first, err := c.Encode(m)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, err := c.Encode(m)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestGraphDeterministicTiedKeys(t *testing.T) {
	c := Graph[map[*leaf]int]{}
	var first []byte
	for i := 0; i < 50; i++ {
		m := map[*leaf]int{
			{Label: "same"}:  1,
			{Label: "same"}:  2,
			{Label: "same"}:  3,
			{Label: "other"}: 4,
		}
		data, err := c.Encode(m)
		require.NoError(t, err)
		if first == nil {
			first = data
		}
		require.Equal(t, first, data, "encoding %d differs", i)
	}
	out, err := c.Decode(first)
	require.NoError(t, err)
	values := make(map[string][]int)
	for k, v := range out {
		values[k.Label] = append(values[k.Label], v)
	}
	assert.ElementsMatch(t, []int{1, 2, 3}, values["same"])
	assert.Equal(t, []int{4}, values["other"])
}

func TestGraphUnsupported(t *testing.T) {
	_, err := Graph[chan int]{}.Encode(make(chan int))
	assert.True(t, errors.Is(err, errors.ErrCodec))
	type withFunc struct {
		F func()
	}
	_, err = Graph[withFunc]{}.Encode(withFunc{F: func() {}})
	assert.True(t, errors.Is(err, errors.ErrCodec))
}

func TestGraphCorrupt(t *testing.T) {
	c := Graph[record]{}
	data, err := c.Encode(record{Name: "name", Tags: []string{"a", "b"}})
	require.NoError(t, err)

	_, err = c.Decode(data[:len(data)-1])
	assert.True(t, errors.Is(err, errors.ErrCodec))

	_, err = c.Decode(append(append([]byte{}, data...), 0))
	assert.True(t, errors.Is(err, errors.ErrCodec))

	_, err = c.Decode([]byte{99})
	assert.True(t, errors.Is(err, errors.ErrCodec))

	_, err = c.Decode([]byte{})
	assert.True(t, errors.Is(err, errors.ErrCodec))

	huge := Graph[[]int]{}
	_, err = huge.Decode([]byte{graphVersion, tagNew, 0xff, 0xff, 0xff, 0xff, 0x0f})
	assert.True(t, errors.Is(err, errors.ErrCodec))

	small := Graph[int8]{}
	wide, err := Graph[int]{}.Encode(1000)
	require.NoError(t, err)
	_, err = small.Decode(wide)
	assert.True(t, errors.Is(err, errors.ErrCodec))
}

func TestRegisterConflicts(t *testing.T) {
	assert.NotPanics(t, func() { Register(square{}) })
	assert.Panics(t, func() { RegisterName("square", square{}) })
	assert.Panics(t, func() { RegisterName("int", leaf{}) })
	assert.Panics(t, func() { Register(nil) })
}

func TestGob(t *testing.T) {
	c := Gob[record]{}
	var r record
	require.NoError(t, faker.FakeData(&r))
	r.hidden = 0
	out := roundTrip[record](t, c, r)
	assert.Equal(t, r.Name, out.Name)
	assert.Equal(t, r.Email, out.Email)
	assert.ElementsMatch(t, r.Tags, out.Tags)

	p := Gob[*record]{}
	data, err := p.Encode(nil)
	require.NoError(t, err)
	assert.Nil(t, data)

	_, err = c.Decode([]byte("not gob"))
	assert.True(t, errors.Is(err, errors.ErrCodec))
}

func TestBytesAndString(t *testing.T) {
	b := Bytes{}
	assert.Nil(t, roundTrip[[]byte](t, b, nil))
	assert.Equal(t, []byte("x"), roundTrip[[]byte](t, b, []byte("x")))

	s := String{}
	data, err := s.Encode("")
	require.NoError(t, err)
	assert.NotNil(t, data)
	assert.Equal(t, "hello", roundTrip[string](t, s, "hello"))
}

func TestFuncs(t *testing.T) {
	calls := 0
	c := Funcs(
		func(p *leaf) []byte { return []byte(p.Label) },
		func(b []byte) *leaf {
			calls++
			return &leaf{Label: string(b)}
		},
	)
	assert.Equal(t, "x", roundTrip(t, c, &leaf{"x"}).Label)
	assert.Nil(t, roundTrip[*leaf](t, c, nil))
	assert.Equal(t, 1, calls)
}
