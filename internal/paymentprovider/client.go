package paymentprovider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ErrProvider возвращается при любом неуспешном ответе провайдера.
var ErrProvider = errors.New("payment provider request failed")

// Client клиент HTTP API платёжного провайдера.
type Client struct {
	apiKey     string
	apiURL     string
	httpClient *http.Client
}

// NewClient создаёт нового клиента платёжного провайдера.
func NewClient(apiURL, apiKey string) *Client {
	return &Client{
		apiKey:     apiKey,
		apiURL:     apiURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *Client) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	url := c.apiURL + path
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return nil, err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrProvider, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("%w: unexpected status %s", ErrProvider, resp.Status)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: %v", ErrProvider, err)
	}
	return nil
}

// CreateCustomer создаёт клиента у провайдера для последующих оплат.
func (c *Client) CreateCustomer(ctx context.Context, reqParams CreateCustomerRequest) (*Customer, error) {
	req, err := c.newRequest(ctx, "POST", "/customers", reqParams)
	if err != nil {
		return nil, err
	}
	var customer Customer
	if err := c.do(req, &customer); err != nil {
		return nil, err
	}
	return &customer, nil
}

// CreateCheckoutSession открывает платёжную сессию для клиента и тарифа.
func (c *Client) CreateCheckoutSession(ctx context.Context, reqParams CreateCheckoutSessionRequest) (*CheckoutSession, error) {
	req, err := c.newRequest(ctx, "POST", "/checkout/sessions", reqParams)
	if err != nil {
		return nil, err
	}
	var session CheckoutSession
	if err := c.do(req, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

// RetrieveCheckoutSession запрашивает состояние платёжной сессии.
func (c *Client) RetrieveCheckoutSession(ctx context.Context, sessionID string) (*CheckoutSession, error) {
	req, err := c.newRequest(ctx, "GET", "/checkout/sessions/"+sessionID, nil)
	if err != nil {
		return nil, err
	}
	var session CheckoutSession
	if err := c.do(req, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

// ModifySubscription изменяет подписку у провайдера, в частности
// останавливает продление в конце оплаченного периода.
func (c *Client) ModifySubscription(ctx context.Context, subscriptionID string, reqParams ModifySubscriptionRequest) (*Subscription, error) {
	req, err := c.newRequest(ctx, "POST", "/subscriptions/"+subscriptionID, reqParams)
	if err != nil {
		return nil, err
	}
	var subscription Subscription
	if err := c.do(req, &subscription); err != nil {
		return nil, err
	}
	return &subscription, nil
}
