package streams

import "context"

// Producer appends records to streams. Create one per connection and share
// it; it holds no state beyond the client and default options.
type Producer struct {
	client   *Client
	defaults *AddOptions
}

// NewProducer returns a producer that applies defaults when Produce is
// called without options.
func NewProducer(client *Client, defaults *AddOptions) *Producer {
	return &Producer{client: client, defaults: defaults}
}

func (p *Producer) Produce(ctx context.Context, key string, record Record, opts *AddOptions) (string, error) {
	if opts == nil {
		opts = p.defaults
	}
	return p.client.Add(ctx, key, record, opts, "")
}

// ProduceMessage is Produce for callers that only need to know whether the
// append succeeded.
func (p *Producer) ProduceMessage(ctx context.Context, key string, record Record, opts *AddOptions) (bool, error) {
	_, err := p.Produce(ctx, key, record, opts)
	return err == nil, err
}
