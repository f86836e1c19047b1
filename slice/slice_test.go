package slice

import "testing"

func TestSub(t *testing.T) {
	buf := []byte("hello world")
	s := AsSlice(&buf)
	sub := s.Sub(6, 5)
	if string(sub) != "world" {
		t.Fatalf("expected world got %q", sub)
	}
	if cap(sub) != 5 {
		t.Fatalf("expected cap 5 got %d", cap(sub))
	}
	sub[0] = 'W'
	if string(buf) != "hello World" {
		t.Fatalf("sub did not alias the backing bytes, %q", buf)
	}
}

func TestSubOutOfRange(t *testing.T) {
	buf := make([]byte, 8)
	s := AsSlice(&buf)
	defer func() {
		if recover() == nil {
			t.Fatal("expected a panic")
		}
	}()
	s.Sub(4, 5)
}

func TestAsBytes(t *testing.T) {
	buf := make([]byte, 16, 32)
	s := AsSlice(&buf)
	if s.Len != 16 || s.Cap != 32 {
		t.Fatalf("bad header %v %v", s.Len, s.Cap)
	}
	back := *s.AsBytes()
	if &back[0] != &buf[0] {
		t.Fatal("AsBytes did not round trip")
	}
}
