package vm

import (
	"strings"
	"sync/atomic"
)

// Cons is a pair cell.
type Cons struct {
	gcHeader
	car atomic.Uint64
	cdr atomic.Uint64
}

func (c *Cons) object() Object { return heapObjectFor(tagCons, c.handle) }

// Object returns the tagged encoding of c.
func (c *Cons) Object() Object { return c.object() }

func (c *Cons) Car() Object { return Object(c.car.Load()) }
func (c *Cons) Cdr() Object { return Object(c.cdr.Load()) }

// SetCar overwrites the first slot.
func (c *Cons) SetCar(v Object) { storeSlot(&c.car, v) }

// SetCdr overwrites the rest slot.
func (c *Cons) SetCdr(v Object) { storeSlot(&c.cdr, v) }

// CarRef returns a reference to the first slot.
func (c *Cons) CarRef() Object { return heapReference(refCar, c.handle) }

// CdrRef returns a reference to the rest slot.
func (c *Cons) CdrRef() Object { return heapReference(refCdr, c.handle) }

// markChildren walks the rest chain iteratively so long lists do not
// recurse once per cell.
func (c *Cons) markChildren(epoch uint64) {
	for {
		c.Car().mark(epoch)
		rest := c.Cdr()
		if !rest.IsCons() {
			rest.mark(epoch)
			return
		}
		next, ok := slots.get(rest.handle()).(*Cons)
		if !ok || !next.claim(epoch) {
			return
		}
		c = next
	}
}

func (c *Cons) deallocate() {
	c.car.Store(uint64(Nil))
	c.cdr.Store(uint64(Nil))
}

func (c *Cons) String() string {
	var b strings.Builder
	writeList(&b, c, make(map[*Cons]bool))
	return b.String()
}

// writeList prints c, writing "..." in place of any cell already being
// printed so circular structure terminates.
func writeList(b *strings.Builder, c *Cons, open map[*Cons]bool) {
	if open[c] {
		b.WriteString("...")
		return
	}
	var chain []*Cons
	defer func() {
		for _, cell := range chain {
			delete(open, cell)
		}
	}()

	b.WriteByte('(')
	for {
		open[c] = true
		chain = append(chain, c)
		writeElement(b, c.Car(), open)

		rest := c.Cdr()
		next, ok := rest.AsCons()
		if !ok {
			if !rest.IsNil() {
				b.WriteString(" . ")
				writeElement(b, rest, open)
			}
			break
		}
		if open[next] {
			b.WriteString(" ...")
			break
		}
		b.WriteByte(' ')
		c = next
	}
	b.WriteByte(')')
}

func writeElement(b *strings.Builder, o Object, open map[*Cons]bool) {
	if c, ok := o.AsCons(); ok {
		writeList(b, c, open)
		return
	}
	b.WriteString(o.String())
}

// ---------------------------------------------------------------------------
// Lists
// ---------------------------------------------------------------------------

// NewCons allocates a pair cell pinned to th.
func (th *Thread) NewCons(car, cdr Object) Object {
	c := &Cons{}
	c.car.Store(uint64(car))
	c.cdr.Store(uint64(cdr))
	return allocate(th, c, nil)
}

// NewList allocates a proper list of items.
func (th *Thread) NewList(items ...Object) Object {
	return th.NewDottedList(items, Nil)
}

// NewDottedList allocates a list of items terminated by tail.
func (th *Thread) NewDottedList(items []Object, tail Object) Object {
	head := tail
	for i := len(items) - 1; i >= 0; i-- {
		head = th.NewCons(items[i], head)
	}
	return head
}

// ListToSlice collects the elements of a proper list. It fails with an
// improper-list error naming the offending list otherwise, circular lists
// included.
func ListToSlice(list Object) ([]Object, error) {
	var out []Object
	err := walkList(list, func(c *Cons) { out = append(out, c.Car()) })
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ListLength counts the elements of a proper list.
func ListLength(list Object) (int, error) {
	n := 0
	if err := walkList(list, func(*Cons) { n++ }); err != nil {
		return 0, err
	}
	return n, nil
}

// walkList calls fn on each cell of list. A second cursor moving at half
// speed detects a cycle.
func walkList(list Object, fn func(*Cons)) error {
	slow := list
	for i, cur := 0, list; !cur.IsNil(); i++ {
		c, ok := cur.AsCons()
		if !ok {
			return &ImproperListError{List: list}
		}
		fn(c)
		cur = c.Cdr()
		if i%2 == 1 {
			s, _ := slow.AsCons()
			slow = s.Cdr()
			if slow == cur && !cur.IsNil() {
				return &ImproperListError{List: list}
			}
		}
	}
	return nil
}

// IsList reports whether o is nil or a pair cell.
func IsList(o Object) bool {
	return o.IsNil() || o.IsCons()
}
