package variant

import (
	"fmt"

	"github.com/petrijr/wireflow/pkg/propex"
)

// Lookup walks root along segs. The boolean result is false when any step is
// missing or addresses a value of the wrong kind. An empty path is an
// argument error.
func Lookup(root Variant, segs []propex.Segment) (Variant, bool, error) {
	if len(segs) == 0 {
		return nil, false, fmt.Errorf("%w: empty path", propex.ErrBadArguments)
	}
	cur := root
	for _, s := range segs {
		switch s.Kind {
		case propex.StringIndex:
			obj, ok := cur.(Object)
			if !ok {
				return nil, false, nil
			}
			if cur, ok = obj[s.Key]; !ok {
				return nil, false, nil
			}
		case propex.IntegerIndex:
			arr, ok := cur.(Array)
			if !ok || s.Index < 0 || s.Index >= len(arr) {
				return nil, false, nil
			}
			cur = arr[s.Index]
		}
	}
	if cur == nil {
		cur = Null{}
	}
	return cur, true, nil
}

// LookupExpr parses expr and looks it up in root.
func LookupExpr(root Variant, expr string) (Variant, bool, error) {
	segs, err := propex.Parse(expr)
	if err != nil {
		return nil, false, err
	}
	return Lookup(root, segs)
}

// Assign stores val at segs below root and returns the updated root. Objects
// are mutated in place; arrays may be reallocated, so callers must always use
// the returned value.
//
// With create set, missing intermediates are created as objects or arrays
// depending on the kind of the following segment, and arrays are padded with
// Null. Without it, only the final segment may be new.
func Assign(root Variant, segs []propex.Segment, val Variant, create bool) (Variant, error) {
	if len(segs) == 0 {
		return nil, fmt.Errorf("%w: empty path", propex.ErrBadArguments)
	}
	return assign(root, segs, val, create)
}

func assign(cur Variant, segs []propex.Segment, val Variant, create bool) (Variant, error) {
	if len(segs) == 0 {
		return val, nil
	}
	s := segs[0]
	last := len(segs) == 1

	switch s.Kind {
	case propex.StringIndex:
		obj, ok := cur.(Object)
		if !ok {
			if !IsNull(cur) || !create {
				return nil, fmt.Errorf("%w: cannot set property %q on %s", ErrTypeMismatch, s.Key, TypeName(cur))
			}
			obj = Object{}
		}
		child, exists := obj[s.Key]
		if !exists && !last && !create {
			return nil, fmt.Errorf("%w: %q", ErrPathNotFound, s.Key)
		}
		next, err := assign(child, segs[1:], val, create)
		if err != nil {
			return nil, err
		}
		obj[s.Key] = next
		return obj, nil

	default:
		arr, ok := cur.(Array)
		if !ok {
			if !IsNull(cur) || !create {
				return nil, fmt.Errorf("%w: cannot index %s with [%d]", ErrTypeMismatch, TypeName(cur), s.Index)
			}
			arr = Array{}
		}
		switch {
		case s.Index < len(arr):
		case s.Index == len(arr) && (last || create):
			arr = append(arr, Null{})
		case create:
			for len(arr) <= s.Index {
				arr = append(arr, Null{})
			}
		default:
			return nil, fmt.Errorf("%w: index %d out of range (len %d)", ErrPathNotFound, s.Index, len(arr))
		}
		child := arr[s.Index]
		if !last && IsNull(child) && !create {
			return nil, fmt.Errorf("%w: index %d", ErrPathNotFound, s.Index)
		}
		next, err := assign(child, segs[1:], val, create)
		if err != nil {
			return nil, err
		}
		arr[s.Index] = next
		return arr, nil
	}
}

// Remove deletes the value at segs below root. It returns the updated root
// and whether anything was removed. Removing an array element shifts the
// following elements down.
func Remove(root Variant, segs []propex.Segment) (Variant, bool) {
	if len(segs) == 0 {
		return root, false
	}
	s := segs[0]
	last := len(segs) == 1

	switch s.Kind {
	case propex.StringIndex:
		obj, ok := root.(Object)
		if !ok {
			return root, false
		}
		child, exists := obj[s.Key]
		if !exists {
			return root, false
		}
		if last {
			delete(obj, s.Key)
			return obj, true
		}
		next, removed := Remove(child, segs[1:])
		obj[s.Key] = next
		return obj, removed

	default:
		arr, ok := root.(Array)
		if !ok || s.Index < 0 || s.Index >= len(arr) {
			return root, false
		}
		if last {
			return append(arr[:s.Index], arr[s.Index+1:]...), true
		}
		next, removed := Remove(arr[s.Index], segs[1:])
		arr[s.Index] = next
		return arr, removed
	}
}
