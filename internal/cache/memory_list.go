package cache

func (c *MemoryCache) LPush(key string, values ...string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.checkType(key, typeList); err != nil {
		return 0, err
	}

	list := c.lists[key]
	head := make([]string, 0, len(values)+len(list))
	for i := len(values) - 1; i >= 0; i-- {
		head = append(head, values[i])
	}
	c.lists[key] = append(head, list...)
	c.touch(key)
	return len(c.lists[key]), nil
}

func (c *MemoryCache) RPush(key string, values ...string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.checkType(key, typeList); err != nil {
		return 0, err
	}

	c.lists[key] = append(c.lists[key], values...)
	c.touch(key)
	return len(c.lists[key]), nil
}

func (c *MemoryCache) LPop(key string) (string, bool, error) {
	return c.pop(key, true)
}

func (c *MemoryCache) RPop(key string) (string, bool, error) {
	return c.pop(key, false)
}

func (c *MemoryCache) pop(key string, left bool) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.checkType(key, typeList); err != nil {
		return "", false, err
	}

	list, exists := c.lists[key]
	if !exists || len(list) == 0 {
		return "", false, nil
	}

	var value string
	if left {
		value = list[0]
		list = list[1:]
	} else {
		value = list[len(list)-1]
		list = list[:len(list)-1]
	}

	if len(list) == 0 {
		delete(c.lists, key)
	} else {
		c.lists[key] = list
	}
	c.touch(key)
	return value, true, nil
}

func (c *MemoryCache) LLen(key string) (int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if err := c.checkType(key, typeList); err != nil {
		return 0, err
	}
	return len(c.lists[key]), nil
}
