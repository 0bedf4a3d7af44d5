package engine

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorClassification(t *testing.T) {
	stepErr := &StepExecutionFailedError{StepID: "pay", StepName: "Pay", Err: errors.New("declined")}
	wrapped := newInstanceError("advance", "inst-1", stepErr)

	assert.True(t, IsExecutionError(wrapped))
	assert.False(t, IsStateError(wrapped))
	assert.Equal(t, "advance instance inst-1: step pay (Pay) failed: declined", wrapped.Error())

	state := newInstanceError("advance", "inst-1", fmt.Errorf("%w: decision d", ErrNoDecisionPathMatched))
	assert.True(t, IsStateError(state))
	assert.False(t, IsExecutionError(state))

	structural := newInstanceError("create", "", fmt.Errorf("%w: no start step", ErrInvalidDefinition))
	assert.True(t, IsStructuralError(structural))
	assert.Equal(t, "create: invalid workflow definition: no start step", structural.Error())
}

func TestKeyedMutex(t *testing.T) {
	locks := newKeyedMutex()

	var (
		wg      sync.WaitGroup
		counter int
	)

	for range 50 {
		wg.Add(1)

		go func() {
			defer wg.Done()

			unlock := locks.Lock("inst-1")
			defer unlock()

			counter++
		}()
	}

	wg.Wait()

	assert.Equal(t, 50, counter)
	assert.Zero(t, locks.size())

	unlockA := locks.Lock("a")
	unlockB := locks.Lock("b")
	assert.Equal(t, 2, locks.size())

	unlockA()
	unlockB()
	assert.Zero(t, locks.size())
}
