package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/apigatewaymanagementapi"
	"github.com/aws/aws-sdk-go-v2/service/apigatewaymanagementapi/types"

	"github.com/gagps/ecommerce-cx/invoices/internal/connection"
)

// PostToConnectionAPI is the management API call the pusher uses.
type PostToConnectionAPI interface {
	PostToConnection(ctx context.Context, params *apigatewaymanagementapi.PostToConnectionInput, optFns ...func(*apigatewaymanagementapi.Options)) (*apigatewaymanagementapi.PostToConnectionOutput, error)
}

var _ PostToConnectionAPI = (*apigatewaymanagementapi.Client)(nil)

// APIGatewayPusher pushes to connections held by a managed websocket API.
type APIGatewayPusher struct {
	client PostToConnectionAPI
}

// NewAPIGatewayPusher creates a pusher over client.
func NewAPIGatewayPusher(client PostToConnectionAPI) *APIGatewayPusher {
	return &APIGatewayPusher{client: client}
}

// NewAPIGatewayClient builds a management client for the stage callback
// endpoint, e.g. https://abc.execute-api.us-east-1.amazonaws.com/prod.
func NewAPIGatewayClient(cfg aws.Config, endpoint string) *apigatewaymanagementapi.Client {
	return apigatewaymanagementapi.NewFromConfig(cfg, func(o *apigatewaymanagementapi.Options) {
		o.BaseEndpoint = aws.String(endpoint)
	})
}

// Push implements connection.Pusher.
func (p *APIGatewayPusher) Push(ctx context.Context, connectionID string, data []byte) error {
	_, err := p.client.PostToConnection(ctx, &apigatewaymanagementapi.PostToConnectionInput{
		ConnectionId: aws.String(connectionID),
		Data:         data,
	})
	if err != nil {
		var gone *types.GoneException
		if errors.As(err, &gone) {
			return connection.ErrGone
		}
		return fmt.Errorf("post to connection %s: %w", connectionID, err)
	}
	return nil
}
