package state

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestUpdateCommits(t *testing.T) {
	s := New()
	x := 0

	err := s.Update(func() error {
		old := x
		x = 42
		s.Record(func() { x = old })
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 42, x)
}

func TestUpdateRevertsOnError(t *testing.T) {
	s := New()
	x, y := 1, 2

	boom := errors.New("boom")
	err := s.Update(func() error {
		oldX := x
		x = 10
		s.Record(func() { x = oldX })

		oldY := y
		y = 20
		s.Record(func() { y = oldY })

		return boom
	})
	require.ErrorIs(t, err, boom)
	require.Equal(t, 1, x)
	require.Equal(t, 2, y)
}

func TestUpdateRevertsNewestFirst(t *testing.T) {
	s := New()
	var order []string

	_ = s.Update(func() error {
		s.Record(func() { order = append(order, "first") })
		s.Record(func() { order = append(order, "second") })
		return errors.New("fail")
	})
	require.Equal(t, []string{"second", "first"}, order)
}

func TestConcurrentUpdatesSerialize(t *testing.T) {
	s := New()
	counter := 0

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.Update(func() error {
				old := counter
				counter = old + 1
				s.Record(func() { counter = old })
				return nil
			})
		}()
	}
	wg.Wait()
	require.Equal(t, 100, counter)
}

func TestFailedUpdateLeavesNoJournal(t *testing.T) {
	s := New()
	x := 0

	_ = s.Update(func() error {
		x = 1
		s.Record(func() { x = 0 })
		return errors.New("fail")
	})
	require.Equal(t, 0, x)

	// A later successful update must not replay stale undo entries.
	err := s.Update(func() error {
		x = 5
		s.Record(func() { x = 4 })
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 5, x)
}
