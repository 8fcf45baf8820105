package vm

import (
	"fmt"
	"sync"
)

// DefaultStackCapacity is the number of slots a new thread's stack holds
// unless configured otherwise.
const DefaultStackCapacity = 4096

// ---------------------------------------------------------------------------
// Stack: per-thread evaluation stack
// ---------------------------------------------------------------------------

// Stack is a fixed-capacity array of Objects. It never grows: references
// into its slots must stay valid for as long as the slot is live.
//
// A frame is a run of argument slots followed by an unsigned count marker:
//
//	[... arg0 arg1 ... argN-1 N]
type Stack struct {
	id    uint16
	mu    sync.Mutex
	slots []Object
	sp    int
}

// ID returns the stack's registry id, which stack references carry.
func (s *Stack) ID() uint16 { return s.id }

// Cap returns the fixed capacity.
func (s *Stack) Cap() int { return len(s.slots) }

// Len returns the number of occupied slots.
func (s *Stack) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sp
}

func (s *Stack) pushLocked(v Object) error {
	if s.sp >= len(s.slots) {
		return &StackOverflowError{Size: s.sp, Cap: len(s.slots)}
	}
	s.slots[s.sp] = v
	s.sp++
	return nil
}

// Push appends v and returns a reference to its slot.
func (s *Stack) Push(v Object) (Object, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.pushLocked(v); err != nil {
		return Nil, err
	}
	return stackReference(s.id, s.sp-1), nil
}

// Pop removes and returns the top slot. Callers that keep the value must
// root it; Thread.Pop does.
func (s *Stack) Pop() (Object, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.popLocked()
}

func (s *Stack) popLocked() (Object, error) {
	if s.sp == 0 {
		return Nil, ErrStackUnderflow
	}
	s.sp--
	v := s.slots[s.sp]
	s.slots[s.sp] = Uninitialized
	return v, nil
}

// MakeFrame pushes values followed by their count. Nothing is pushed when
// the frame would not fit.
func (s *Stack) MakeFrame(values ...Object) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sp+len(values)+1 > len(s.slots) {
		return &StackOverflowError{Size: s.sp, Cap: len(s.slots)}
	}
	for _, v := range values {
		s.slots[s.sp] = v
		s.sp++
	}
	s.slots[s.sp] = FromUint(uint32(len(values)))
	s.sp++
	return nil
}

// frameCountLocked reads the count marker on top of the stack.
func (s *Stack) frameCountLocked() (int, error) {
	if s.sp == 0 {
		return 0, ErrStackUnderflow
	}
	marker := s.slots[s.sp-1]
	if !marker.IsUint() {
		return 0, fmt.Errorf("vm: top of stack %d is %s, not a frame marker", s.id, marker)
	}
	n := int(marker.Uint())
	if n+1 > s.sp {
		return 0, ErrStackUnderflow
	}
	return n, nil
}

// CloseFrame removes the current frame and its marker.
func (s *Stack) CloseFrame() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, err := s.frameCountLocked()
	if err != nil {
		return err
	}
	s.dropLocked(n + 1)
	return nil
}

// CloseFrameAndReturn replaces the current frame with v.
func (s *Stack) CloseFrameAndReturn(v Object) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, err := s.frameCountLocked()
	if err != nil {
		return err
	}
	s.dropLocked(n + 1)
	return s.pushLocked(v)
}

// NthArg returns a reference to argument n of the current frame.
func (s *Stack) NthArg(n int) (Object, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count, err := s.frameCountLocked()
	if err != nil {
		return Nil, err
	}
	if n < 0 || n >= count {
		return Nil, &ArgIndexError{Attempted: n, Length: count}
	}
	return stackReference(s.id, s.sp-1-count+n), nil
}

// EndFrame pops the n slots of a call frame that has no count marker.
func (s *Stack) EndFrame(n int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n > s.sp {
		return ErrStackUnderflow
	}
	s.dropLocked(n)
	return nil
}

func (s *Stack) dropLocked(n int) {
	for i := s.sp - n; i < s.sp; i++ {
		s.slots[i] = Uninitialized
	}
	s.sp -= n
}

func (s *Stack) get(idx int) Object {
	s.mu.Lock()
	defer s.mu.Unlock()
	if idx >= s.sp {
		return Uninitialized
	}
	return s.slots[idx]
}

func (s *Stack) set(idx int, v Object) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if idx >= s.sp {
		return fmt.Errorf("vm: write to popped stack slot %d of stack %d", idx, s.id)
	}
	s.slots[idx] = v
	return nil
}

// appendLive appends the occupied slots to dst.
func (s *Stack) appendLive(dst []Object) []Object {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append(dst, s.slots[:s.sp]...)
}

// ---------------------------------------------------------------------------
// Stack registry
// ---------------------------------------------------------------------------

// stackRegistry maps stack ids to stacks so references can be resolved
// from any goroutine. Ids are recycled when a thread closes.
type stackRegistry struct {
	mu     sync.RWMutex
	stacks map[uint16]*Stack
	free   []uint16
	next   uint32
}

var stacks = &stackRegistry{stacks: make(map[uint16]*Stack)}

func newStack(capacity int) (*Stack, error) {
	if capacity <= 0 {
		capacity = DefaultStackCapacity
	}
	if uint64(capacity) > stackIndexMask {
		return nil, fmt.Errorf("vm: stack capacity %d too large", capacity)
	}

	stacks.mu.Lock()
	defer stacks.mu.Unlock()

	var id uint16
	if n := len(stacks.free); n > 0 {
		id = stacks.free[n-1]
		stacks.free = stacks.free[:n-1]
	} else {
		if stacks.next > 0xFFFF {
			return nil, fmt.Errorf("vm: too many live stacks")
		}
		id = uint16(stacks.next)
		stacks.next++
	}

	s := &Stack{id: id, slots: make([]Object, capacity)}
	for i := range s.slots {
		s.slots[i] = Uninitialized
	}
	stacks.stacks[id] = s
	return s, nil
}

func lookupStack(id uint16) *Stack {
	stacks.mu.RLock()
	defer stacks.mu.RUnlock()
	return stacks.stacks[id]
}

// releaseStack frees s's id for the next thread. See stackReference for
// why no reference into s can be read afterwards.
func releaseStack(s *Stack) {
	stacks.mu.Lock()
	defer stacks.mu.Unlock()
	if stacks.stacks[s.id] == s {
		delete(stacks.stacks, s.id)
		stacks.free = append(stacks.free, s.id)
	}
}
