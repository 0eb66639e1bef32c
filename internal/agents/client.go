package agents

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
)

const methodSendMessage = "message/send"

// ErrRemoteAgent wraps JSON-RPC errors returned by a remote agent.
var ErrRemoteAgent = errors.New("remote agent error")

type rpcRequest struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      string      `json:"id"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params"`
}

type textPart struct {
	Kind string `json:"kind"`
	Type string `json:"type"`
	Text string `json:"text"`
}

type message struct {
	Role      string     `json:"role"`
	Parts     []textPart `json:"parts"`
	MessageID string     `json:"messageId"`
	ContextID string     `json:"contextId,omitempty"`
}

// sendConfiguration asks the agent to acknowledge with a submitted task
// instead of holding the request open until the task completes.
type sendConfiguration struct {
	Blocking            bool     `json:"blocking"`
	AcceptedOutputModes []string `json:"acceptedOutputModes"`
}

type sendParams struct {
	Message       message            `json:"message"`
	Configuration *sendConfiguration `json:"configuration,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// sendResult covers both result shapes: a Task or a direct Message.
type sendResult struct {
	Kind      string `json:"kind"`
	ID        string `json:"id"`
	TaskID    string `json:"taskId"`
	ContextID string `json:"contextId"`
	Status    struct {
		State string `json:"state"`
	} `json:"status"`
}

type rpcResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      string      `json:"id"`
	Result  *sendResult `json:"result"`
	Error   *rpcError   `json:"error"`
}

// SendResult is a remote agent's acknowledgment of a message.
type SendResult struct {
	TaskID    string
	ContextID string
	State     string
}

// A2AClient sends messages to one remote agent.
type A2AClient struct {
	client *resty.Client
	url    string
}

// NewA2AClient creates a client for the agent endpoint at url. Sends are
// not retried here; the host re-dispatches on the next conversation turn.
func NewA2AClient(url string, timeout time.Duration) *A2AClient {
	client := resty.New()
	client.SetTimeout(timeout)
	client.SetHeader("Content-Type", "application/json")
	return &A2AClient{client: client, url: url}
}

// URL returns the agent endpoint.
func (c *A2AClient) URL() string { return c.url }

// SendMessage delivers text as a non-blocking user message. contextID groups
// messages belonging to the same conversation on the remote side. A stable
// messageID lets the agent recognise a resend of the same request; when
// empty a random one is used.
func (c *A2AClient) SendMessage(ctx context.Context, text, contextID, messageID string) (*SendResult, error) {
	if messageID == "" {
		messageID = strings.ReplaceAll(uuid.NewString(), "-", "")
	}
	req := rpcRequest{
		JSONRPC: "2.0",
		ID:      uuid.NewString(),
		Method:  methodSendMessage,
		Params: sendParams{
			Message: message{
				Role:      "user",
				Parts:     []textPart{{Kind: "text", Type: "text", Text: text}},
				MessageID: messageID,
				ContextID: contextID,
			},
			Configuration: &sendConfiguration{Blocking: false, AcceptedOutputModes: []string{"text"}},
		},
	}

	var out rpcResponse
	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&out).
		SetError(&out).
		Post(c.url)
	if err != nil {
		return nil, fmt.Errorf("failed to send message to %s: %w", c.url, err)
	}
	if out.Error != nil {
		return nil, fmt.Errorf("%w: %d %s", ErrRemoteAgent, out.Error.Code, out.Error.Message)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("%w: HTTP %d", ErrRemoteAgent, resp.StatusCode())
	}
	if out.Result == nil {
		return nil, fmt.Errorf("%w: empty result", ErrRemoteAgent)
	}

	res := &SendResult{ContextID: out.Result.ContextID, State: out.Result.Status.State}
	res.TaskID = out.Result.TaskID
	if res.TaskID == "" && out.Result.Kind != "message" {
		res.TaskID = out.Result.ID
	}
	if res.State == "" {
		res.State = "submitted"
	}
	return res, nil
}
