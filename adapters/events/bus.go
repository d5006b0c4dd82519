package events

import (
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/redis/go-redis/v9"
)

// NewGoChannelBus creates an in-process pub/sub bus. The returned value is
// both a message.Publisher and a message.Subscriber, which is all a single
// process deployment needs.
func NewGoChannelBus(logger *slog.Logger) *gochannel.GoChannel {
	return gochannel.NewGoChannel(gochannel.Config{}, watermill.NewSlogLogger(logger))
}

// NewRedisStreamPublisher creates a publisher over Redis streams for
// deployments where expiry signals must cross process boundaries
func NewRedisStreamPublisher(client redis.UniversalClient, logger *slog.Logger) (*redisstream.Publisher, error) {
	return redisstream.NewPublisher(
		redisstream.PublisherConfig{
			Client: client,
		},
		watermill.NewSlogLogger(logger),
	)
}

// NewRedisStreamSubscriber creates a consumer-group subscriber over Redis streams
func NewRedisStreamSubscriber(client redis.UniversalClient, consumerGroup string, logger *slog.Logger) (*redisstream.Subscriber, error) {
	return redisstream.NewSubscriber(
		redisstream.SubscriberConfig{
			Client:        client,
			ConsumerGroup: consumerGroup,
		},
		watermill.NewSlogLogger(logger),
	)
}
