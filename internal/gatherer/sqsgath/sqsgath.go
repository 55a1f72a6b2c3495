package sqsgath

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/programme-lv/exerciser/internal/gatherer/stream"
)

const sendTimeout = 5 * time.Second

// Sender is the part of the SQS client the gatherer uses.
type Sender interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// NewClient loads the default AWS config for region.
func NewClient(ctx context.Context, region string) (*sqs.Client, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, err
	}
	return sqs.NewFromConfig(cfg), nil
}

// New creates a gatherer that sends progress messages to an SQS queue.
func New(client Sender, queueUrl string, evalUuid string, logger *slog.Logger) *stream.Gatherer {
	log := logger.With(slog.String("component", "sqsgath"))
	return stream.New(evalUuid, func(msg any) {
		b, err := json.Marshal(msg)
		if err != nil {
			log.Error("failed to marshal message", slog.Any("error", err))
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
		defer cancel()
		_, err = client.SendMessage(ctx, &sqs.SendMessageInput{
			QueueUrl:       aws.String(queueUrl),
			MessageBody:    aws.String(string(b)),
			MessageGroupId: groupID(queueUrl, evalUuid),
		})
		if err != nil {
			log.Warn("failed to send message", slog.Any("error", err))
		}
	})
}

// groupID keeps the messages of one evaluation ordered on FIFO queues.
func groupID(queueUrl, evalUuid string) *string {
	if len(queueUrl) > 5 && queueUrl[len(queueUrl)-5:] == ".fifo" {
		return aws.String(evalUuid)
	}
	return nil
}
