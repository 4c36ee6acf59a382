package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"go.uber.org/zap"

	"github.com/genc-murat/crystalstream/internal/core/models"
	"github.com/genc-murat/crystalstream/internal/core/ports"
	"github.com/genc-murat/crystalstream/pkg/resp"
)

var ErrLocked = errors.New("aof: file is in use by another store")

var _ ports.Storage = (*AOF)(nil)

// AOF appends write commands in RESP form and replays them on start. An
// exclusive lock file next to the log keeps two stores off the same file.
type AOF struct {
	file   *os.File
	lock   *flock.Flock
	logger *zap.Logger
	mu     sync.Mutex
	done   chan struct{}
	wg     sync.WaitGroup
}

func NewAOF(path string, logger *zap.Logger) (*AOF, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	lock := flock.New(path + ".lock")
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("aof: lock %s: %w", path, err)
	}
	if !locked {
		return nil, ErrLocked
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		_ = lock.Unlock()
		return nil, err
	}

	aof := &AOF{
		file:   f,
		lock:   lock,
		logger: logger,
		done:   make(chan struct{}),
	}

	aof.wg.Add(1)
	go aof.syncLoop(time.Second)

	return aof, nil
}

func (aof *AOF) syncLoop(every time.Duration) {
	defer aof.wg.Done()

	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-aof.done:
			return
		case <-ticker.C:
			aof.mu.Lock()
			if err := aof.file.Sync(); err != nil {
				aof.logger.Warn("aof sync failed", zap.Error(err))
			}
			aof.mu.Unlock()
		}
	}
}

func (aof *AOF) Close() error {
	close(aof.done)
	aof.wg.Wait()

	aof.mu.Lock()
	defer aof.mu.Unlock()

	err := aof.file.Sync()
	if cerr := aof.file.Close(); err == nil {
		err = cerr
	}
	if uerr := aof.lock.Unlock(); err == nil {
		err = uerr
	}
	return err
}

func (aof *AOF) Write(value models.Value) error {
	aof.mu.Lock()
	defer aof.mu.Unlock()

	writer := resp.NewWriter(aof.file)
	return writer.Write(value)
}

// Read replays every logged command. A command cut short by a crash at
// the end of the file is skipped.
func (aof *AOF) Read(callback func(value models.Value)) error {
	aof.mu.Lock()
	defer aof.mu.Unlock()

	if _, err := aof.file.Seek(0, io.SeekStart); err != nil {
		return err
	}

	reader := resp.NewReader(aof.file)
	replayed := 0
	for {
		value, err := reader.Read()
		if err == io.EOF {
			break
		}
		if errors.Is(err, io.ErrUnexpectedEOF) {
			aof.logger.Warn("aof ends with a truncated command", zap.Int("replayed", replayed))
			break
		}
		if err != nil {
			return err
		}
		callback(value)
		replayed++
	}

	aof.logger.Info("aof replayed", zap.Int("commands", replayed))
	return nil
}
