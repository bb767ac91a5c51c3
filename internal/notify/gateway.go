package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// PushGateway sends multicast pushes to an HTTP relay that fronts the push
// provider.
type PushGateway struct {
	url    string
	key    string
	client *http.Client
}

func NewPushGateway(url, key string, timeout time.Duration) *PushGateway {
	return &PushGateway{
		url: url,
		key: key,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

type pushRequest struct {
	Tokens []string          `json:"tokens"`
	Title  string            `json:"title"`
	Body   string            `json:"body"`
	Data   map[string]string `json:"data,omitempty"`
}

type pushResponse struct {
	SuccessCount int `json:"successCount"`
	FailureCount int `json:"failureCount"`
	Responses    []struct {
		Token   string `json:"token"`
		Success bool   `json:"success"`
		Error   string `json:"error"`
	} `json:"responses"`
}

func (g *PushGateway) SendMulticast(ctx context.Context, msg PushMessage) (PushResult, error) {
	var out pushResponse
	err := postJSON(ctx, g.client, g.url, g.key, pushRequest{
		Tokens: msg.Tokens,
		Title:  msg.Title,
		Body:   msg.Body,
		Data:   msg.Data,
	}, &out)
	if err != nil {
		return PushResult{}, fmt.Errorf("error sending push batch: %w", err)
	}

	res := PushResult{
		SuccessCount: out.SuccessCount,
		FailureCount: out.FailureCount,
		Errors:       make(map[string]string),
	}
	for _, r := range out.Responses {
		if !r.Success {
			res.Errors[r.Token] = r.Error
		}
	}
	return res, nil
}

// SMSGateway posts messages to an HTTP SMS gateway.
type SMSGateway struct {
	url    string
	key    string
	client *http.Client
}

func NewSMSGateway(url, key string, timeout time.Duration) *SMSGateway {
	return &SMSGateway{
		url: url,
		key: key,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

type smsRequest struct {
	Numbers []string `json:"numbers"`
	Message string   `json:"message"`
}

type smsResponse struct {
	Results []struct {
		Number string `json:"number"`
		Status string `json:"status"`
	} `json:"results"`
}

func (g *SMSGateway) Send(ctx context.Context, numbers []string, body string) (map[string]string, error) {
	var out smsResponse
	if err := postJSON(ctx, g.client, g.url, g.key, smsRequest{Numbers: numbers, Message: body}, &out); err != nil {
		return nil, fmt.Errorf("error sending sms: %w", err)
	}

	statuses := make(map[string]string, len(out.Results))
	for _, r := range out.Results {
		statuses[r.Number] = r.Status
	}
	return statuses, nil
}

func postJSON(ctx context.Context, client *http.Client, url, key string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("error encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("error while doing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("unexpected status code: %d - %s", resp.StatusCode, bytes.TrimSpace(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("error decoding resp.Body: %w", err)
	}
	return nil
}
