package specmatch

// Matcher compares parsed specs with observed values. The zero value checks
// key presence only.
type Matcher struct {
	// StrictValueMatch enforces scalar equality. Placeholders always match
	// any present value.
	StrictValueMatch bool
}

// Matches reports whether observed satisfies spec. observed is a tree as
// produced by encoding/json (map[string]any, []any, string, float64, bool, nil).
func (m Matcher) Matches(spec Node, observed any) bool {
	switch s := spec.(type) {
	case *Object:
		obj, ok := observed.(map[string]any)
		if !ok {
			return false
		}
		for _, k := range s.Keys {
			v, present := obj[k]
			if !present {
				return false
			}
			if !m.matchField(s.Fields[k], v) {
				return false
			}
		}
		return true

	case *Array:
		seq, ok := observed.([]any)
		if !ok {
			return false
		}
		if len(s.Elems) == 0 {
			return true
		}
		if len(seq) == 0 {
			return false
		}
		return m.Matches(s.Elems[0], seq[0])

	case *Scalar:
		if !m.StrictValueMatch || s.Placeholder {
			return observed != nil || s.Value == nil
		}
		return scalarEqual(s.Value, observed)
	}
	return false
}

// matchField checks the value under a key that is already known to exist.
func (m Matcher) matchField(spec Node, v any) bool {
	if s, ok := spec.(*Scalar); ok {
		if !m.StrictValueMatch || s.Placeholder {
			return true
		}
		return scalarEqual(s.Value, v)
	}
	return m.Matches(spec, v)
}

// ValidateAgainstCandidates checks a spec against observed data that may be
// a set of candidate events (a data layer) rather than a single event.
//
// For an object spec, the candidate sharing the most keys with the spec is
// selected (the earliest wins a tie) and only that candidate is matched. No
// shared key at all means false.
func (m Matcher) ValidateAgainstCandidates(spec Node, observed any) bool {
	candidates, ok := observed.([]any)
	if !ok {
		candidates = []any{observed}
	}

	obj, isObj := spec.(*Object)
	if !isObj {
		if _, isArr := spec.(*Array); isArr && m.Matches(spec, observed) {
			return true
		}
		for _, c := range candidates {
			if m.Matches(spec, c) {
				return true
			}
		}
		return false
	}

	best, bestScore := -1, 0
	for i, c := range candidates {
		cm, ok := c.(map[string]any)
		if !ok {
			continue
		}
		score := 0
		for k := range obj.Fields {
			if _, present := cm[k]; present {
				score++
			}
		}
		if score > bestScore {
			best, bestScore = i, score
		}
	}
	if best < 0 {
		return false
	}
	return m.Matches(spec, candidates[best])
}

func scalarEqual(want, got any) bool {
	switch w := want.(type) {
	case nil:
		return got == nil
	case float64:
		switch g := got.(type) {
		case float64:
			return w == g
		case int:
			return w == float64(g)
		case int64:
			return w == float64(g)
		}
		return false
	case string:
		g, ok := got.(string)
		return ok && g == w
	case bool:
		g, ok := got.(bool)
		return ok && g == w
	}
	return false
}
