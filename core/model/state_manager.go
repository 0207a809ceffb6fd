// Package model provides the module abstraction and training state shared by petalnet models.
package model

import (
	"sync"

	"github.com/YuminosukeSato/petalnet/pkg/errors"
)

// StateManager manages the trained state of a head in a thread-safe manner.
type StateManager struct {
	Trained bool // Public for gob encoding
	mu      sync.RWMutex

	// Optional metadata - Public for gob encoding
	Epochs   int
	NSamples int
}

// NewStateManager creates a new StateManager instance.
func NewStateManager() *StateManager {
	return &StateManager{
		Trained: false,
	}
}

// IsTrained returns whether the head has been trained or loaded from a checkpoint.
func (s *StateManager) IsTrained() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Trained
}

// SetTrained marks the head as trained after the given number of epochs over nSamples images.
func (s *StateManager) SetTrained(epochs, nSamples int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Trained = true
	s.Epochs = epochs
	s.NSamples = nSamples
}

// RequireTrained returns ErrNotTrained if the head has not been trained.
func (s *StateManager) RequireTrained() error {
	if !s.IsTrained() {
		return errors.WithStack(errors.ErrNotTrained)
	}
	return nil
}
