package reschedule

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCompensationLogUnwindsInReverse(t *testing.T) {
	log := newCompensationLog(testLogger())

	var order []string
	for _, label := range []string{"first", "second", "third"} {
		label := label
		log.push(label, func(context.Context) error {
			order = append(order, label)
			return nil
		})
	}

	failed := log.unwind(context.Background())

	assert.Equal(t, 0, failed)
	assert.Equal(t, []string{"third", "second", "first"}, order)
	assert.Equal(t, 0, log.depth())
}

func TestCompensationLogCountsFailuresWithoutAborting(t *testing.T) {
	log := newCompensationLog(testLogger())

	ran := 0
	log.push("ok", func(context.Context) error {
		ran++
		return nil
	})
	log.push("broken", func(context.Context) error {
		ran++
		return errors.New("vendor said no")
	})
	log.push("also ok", func(context.Context) error {
		ran++
		return nil
	})

	failed := log.unwind(context.Background())

	assert.Equal(t, 1, failed)
	assert.Equal(t, 3, ran)
}

func TestCompensationLogDiscard(t *testing.T) {
	log := newCompensationLog(testLogger())

	ran := false
	log.push("never", func(context.Context) error {
		ran = true
		return nil
	})
	log.discard()

	assert.Equal(t, 0, log.depth())
	assert.Equal(t, 0, log.unwind(context.Background()))
	assert.False(t, ran)
}
