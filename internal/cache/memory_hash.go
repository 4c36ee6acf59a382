package cache

import "sort"

// HSet sets field in hash and reports whether the field is new.
func (c *MemoryCache) HSet(hash string, field string, value string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.checkType(hash, typeHash); err != nil {
		return false, err
	}

	fields, exists := c.hsets[hash]
	if !exists {
		fields = make(map[string]string)
		c.hsets[hash] = fields
	}
	_, had := fields[field]
	fields[field] = value
	c.touch(hash)
	return !had, nil
}

func (c *MemoryCache) HGet(hash string, field string) (string, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if err := c.checkType(hash, typeHash); err != nil {
		return "", false, err
	}
	value, ok := c.hsets[hash][field]
	return value, ok, nil
}

// HGetAll returns field/value pairs ordered by field name.
func (c *MemoryCache) HGetAll(hash string) ([]string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if err := c.checkType(hash, typeHash); err != nil {
		return nil, err
	}

	fields := c.hsets[hash]
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)

	pairs := make([]string, 0, len(names)*2)
	for _, name := range names {
		pairs = append(pairs, name, fields[name])
	}
	return pairs, nil
}

func (c *MemoryCache) HDel(hash string, fields ...string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.checkType(hash, typeHash); err != nil {
		return 0, err
	}

	hashMap, exists := c.hsets[hash]
	if !exists {
		return 0, nil
	}

	deleted := 0
	for _, field := range fields {
		if _, ok := hashMap[field]; ok {
			delete(hashMap, field)
			deleted++
		}
	}
	if len(hashMap) == 0 {
		delete(c.hsets, hash)
	}
	if deleted > 0 {
		c.touch(hash)
	}
	return deleted, nil
}
