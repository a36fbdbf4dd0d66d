package queue

import (
	"errors"
	"fmt"
	"os"
	"sync"
)

var ErrNoReceipt = errors.New("no receipt on device")

// FileReceiptStore reads the receipt from a file on disk
type FileReceiptStore struct {
	Path string
}

func (s FileReceiptStore) ReadReceipt() ([]byte, error) {
	if s.Path == "" {
		return nil, ErrNoReceipt
	}
	data, err := os.ReadFile(s.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNoReceipt, s.Path)
		}
		return nil, fmt.Errorf("failed to read receipt: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: %s is empty", ErrNoReceipt, s.Path)
	}
	return data, nil
}

// MemoryReceiptStore holds a receipt in memory
type MemoryReceiptStore struct {
	mu   sync.RWMutex
	data []byte
	err  error
}

func NewMemoryReceiptStore(data []byte) *MemoryReceiptStore {
	return &MemoryReceiptStore{data: data}
}

// Set replaces the receipt and clears any configured error
func (s *MemoryReceiptStore) Set(data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = data
	s.err = nil
}

// Fail makes subsequent reads return err
func (s *MemoryReceiptStore) Fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

func (s *MemoryReceiptStore) ReadReceipt() ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.err != nil {
		return nil, s.err
	}
	if len(s.data) == 0 {
		return nil, ErrNoReceipt
	}
	out := make([]byte, len(s.data))
	copy(out, s.data)
	return out, nil
}
