package messaging

import (
	"context"
	"time"

	"github.com/google/uuid"
)

const (
	ExtractionQueue = "extraction_queue"
	RetryDelay      = 5 * time.Second
	MaxConnectRetry = 5
)

type Task interface {
	Type() string

	Payload() []byte

	Ack() error

	Nack() error

	Reject() error
}

type ExtractionPayload struct {
	TaskId uuid.UUID
}

type Publisher interface {
	PublishExtractionTask(ctx context.Context, payload ExtractionPayload) error

	Close()
}

type Reciever interface {
	Tasks() <-chan Task

	Close()
}
