package dispatch

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTasksRunInOrderOnOneGoroutine(t *testing.T) {
	d := New()
	defer d.Close()

	var got []int
	for i := 0; i < 100; i++ {
		i := i
		d.Submit(func() { got = append(got, i) })
	}
	d.Sync()

	assert.Len(t, got, 100)
	for i, v := range got {
		assert.Equal(t, i, v)
	}
}

func TestSubmitFromTaskDoesNotBlock(t *testing.T) {
	d := New()
	defer d.Close()

	var wg sync.WaitGroup
	wg.Add(1)
	d.Submit(func() {
		for i := 0; i < 1000; i++ {
			d.Submit(func() {})
		}
		d.Submit(wg.Done)
	})
	wg.Wait()
}

func TestPanicIsRecovered(t *testing.T) {
	d := New()
	defer d.Close()

	ran := false
	d.Submit(func() { panic("boom") })
	d.Submit(func() { ran = true })
	d.Sync()
	assert.True(t, ran)
}

func TestCloseDrainsAndRejects(t *testing.T) {
	d := New()
	count := 0
	for i := 0; i < 10; i++ {
		d.Submit(func() { count++ })
	}
	d.Close()

	assert.Equal(t, 10, count)
	assert.False(t, d.Submit(func() {}))
	d.Sync()
}
