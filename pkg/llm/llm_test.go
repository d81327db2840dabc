package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedClient struct {
	errs      []error
	transient bool
	calls     int
}

func (c *scriptedClient) Chat(ctx context.Context, model string, messages []Message, tools []ToolDef) (*Message, error) {
	c.calls++
	if len(c.errs) > 0 {
		err := c.errs[0]
		c.errs = c.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	m := AssistantMessage("ok")
	return &m, nil
}

func (c *scriptedClient) IsTransientError(err error) bool { return c.transient }

func TestRetryClientRetriesTransientErrors(t *testing.T) {
	inner := &scriptedClient{
		errs:      []error{errors.New("429 rate limited"), errors.New("503"), nil},
		transient: true,
	}
	client := &RetryClient{Client: inner, MaxRetries: 3}

	resp, err := client.Chat(context.Background(), "m", []Message{UserMessage("hi")}, nil)
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Content)
	assert.Equal(t, 3, inner.calls)
}

func TestRetryClientStopsOnPermanentError(t *testing.T) {
	inner := &scriptedClient{
		errs:      []error{errors.New("invalid api key")},
		transient: false,
	}
	client := &RetryClient{Client: inner, MaxRetries: 3}

	_, err := client.Chat(context.Background(), "m", nil, nil)
	require.ErrorContains(t, err, "invalid api key")
	assert.Equal(t, 1, inner.calls)
}

func TestRetryClientGivesUpAfterMaxRetries(t *testing.T) {
	inner := &scriptedClient{
		errs:      []error{errors.New("timeout"), errors.New("timeout"), errors.New("timeout")},
		transient: true,
	}
	client := &RetryClient{Client: inner, MaxRetries: 3}

	_, err := client.Chat(context.Background(), "m", nil, nil)
	require.ErrorContains(t, err, "timeout")
	assert.Equal(t, 3, inner.calls)
}
