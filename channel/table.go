package channel

// Table is the ordered channel collection addressed by guest handles.
// Its length is fixed once the session starts; handlers never add or
// remove entries.
type Table []*Desc

// Desc returns the descriptor for the given handle, nil when the handle
// does not index an existing channel.
func (t Table) Desc(ch int64) *Desc {
	if ch < 0 || ch >= int64(len(t)) {
		return nil
	}
	return t[ch]
}

// Lookup finds a descriptor by alias, nil when absent.
func (t Table) Lookup(alias string) *Desc {
	for _, d := range t {
		if d.Alias == alias {
			return d
		}
	}
	return nil
}

// Close closes every descriptor's backend, returning the first error.
func (t Table) Close() error {
	var first error
	for _, d := range t {
		if err := d.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
