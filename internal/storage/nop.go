package storage

import "github.com/genc-murat/crystalstream/internal/core/models"

// Nop is the storage used when persistence is disabled.
type Nop struct{}

func (Nop) Write(models.Value) error { return nil }

func (Nop) Read(func(models.Value)) error { return nil }

func (Nop) Close() error { return nil }
