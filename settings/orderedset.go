package settings

// orderedSet is a small insertion-ordered string set. Parameter key sets
// stay short, linear scans beat a map here.
type orderedSet struct {
	keys []string
}

func (s *orderedSet) add(key string) {
	if s.contains(key) {
		return
	}
	s.keys = append(s.keys, key)
}

func (s *orderedSet) remove(key string) {
	for i, k := range s.keys {
		if k == key {
			s.keys = append(s.keys[:i], s.keys[i+1:]...)
			return
		}
	}
}

func (s *orderedSet) contains(key string) bool {
	for _, k := range s.keys {
		if k == key {
			return true
		}
	}
	return false
}

func (s *orderedSet) values() []string {
	out := make([]string, len(s.keys))
	copy(out, s.keys)
	return out
}
