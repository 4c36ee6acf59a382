package ports

import "github.com/genc-murat/crystalstream/internal/core/models"

// Storage persists write commands so the keyspace can be rebuilt on start.
type Storage interface {
	Write(value models.Value) error
	Read(callback func(value models.Value)) error
	Close() error
}
