package rabbitmq

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/fzzzzzj/aivideomake/internal/domain/entity"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
)

func TestBackoff(t *testing.T) {
	base := 100 * time.Millisecond
	assert.Equal(t, 100*time.Millisecond, backoff(base, 0))
	assert.Equal(t, 100*time.Millisecond, backoff(base, 1))
	assert.Equal(t, 400*time.Millisecond, backoff(base, 3))
	assert.Equal(t, maxBackoff, backoff(base, 20))
	assert.Equal(t, maxBackoff, backoff(time.Second, 200))
	for attempt := 30; attempt <= 80; attempt++ {
		assert.Equal(t, maxBackoff, backoff(base, attempt), "attempt %d", attempt)
	}
	assert.Equal(t, maxBackoff, backoff(time.Millisecond, 1100))
}

func TestAttemptOf(t *testing.T) {
	retry := fmt.Errorf("wrapped: %w", &entity.RetryableError{Attempt: 3, Err: errors.New("boom")})
	assert.Equal(t, 3, attemptOf(retry, amqp.Delivery{}))

	assert.Equal(t, 1, attemptOf(errors.New("plain"), amqp.Delivery{}))

	d := amqp.Delivery{Headers: amqp.Table{"x-death": []interface{}{amqp.Table{}, amqp.Table{}}}}
	assert.Equal(t, 2, attemptOf(errors.New("plain"), d))
}
