package events

import (
	"context"
	"encoding/json"
	"fmt"

	"storefront/models"
	aws_pkg "storefront/pkg/aws"
)

// SNSPublisher fans order events out through an SNS topic.
type SNSPublisher struct {
	client   aws_pkg.SNSPublisher
	topicArn string
}

func NewSNSPublisher(client aws_pkg.SNSPublisher, topicArn string) *SNSPublisher {
	return &SNSPublisher{client: client, topicArn: topicArn}
}

func (p *SNSPublisher) PublishOrderEvent(ctx context.Context, event models.OrderEvent) error {
	if p.topicArn == "" {
		return fmt.Errorf("order events topic ARN not configured")
	}
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal order event: %w", err)
	}
	return p.client.Publish(ctx, p.topicArn, data)
}

func (p *SNSPublisher) Close() error { return nil }
