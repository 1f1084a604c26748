// Package client talks to the backend over JSON/HTTP and implements the
// gateway collaborator interfaces for the terminal.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/kiwari-pos/terminal/internal/catalog"
	"github.com/kiwari-pos/terminal/internal/gateway"
	"github.com/kiwari-pos/terminal/internal/ticket"
	"github.com/shopspring/decimal"
)

// maxErrorBody caps how much of a failed response is read for its message.
const maxErrorBody = 64 << 10

var (
	_ gateway.MenuService       = (*Client)(nil)
	_ gateway.OrderPersister    = (*Client)(nil)
	_ gateway.PaymentAuthorizer = (*Client)(nil)
)

// Client is a backend client. The zero HTTP client is replaced by
// http.DefaultClient; deadlines come from the caller's context.
type Client struct {
	baseURL string
	http    *http.Client
}

func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
	}
}

// ── Request/response bodies ──

type orderRequest struct {
	OrderType       string             `json:"orderType"`
	Label           string             `json:"label"`
	DeliveryAddress string             `json:"deliveryAddress"`
	DeliveryContact string             `json:"deliveryContact"`
	Tip             decimal.Decimal    `json:"tip"`
	Discount        decimal.Decimal    `json:"discount"`
	Items           []catalog.LineItem `json:"items"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// ── Collaborator calls ──

// Menu fetches the current catalog.
func (c *Client) Menu(ctx context.Context) (gateway.Menu, error) {
	var menu gateway.Menu
	if err := c.do(ctx, http.MethodGet, "/menu", nil, &menu); err != nil {
		return gateway.Menu{}, fmt.Errorf("get menu: %w", err)
	}
	if menu.Categories == nil {
		menu.Categories = map[string][]catalog.Item{}
	}
	return menu, nil
}

// SaveOrder posts a ticket snapshot and returns the assigned order.
func (c *Client) SaveOrder(ctx context.Context, snap ticket.Snapshot) (gateway.OrderReceipt, error) {
	items := snap.Items
	if items == nil {
		items = []catalog.LineItem{}
	}
	body := orderRequest{
		OrderType:       snap.OrderType,
		Label:           snap.Label,
		DeliveryAddress: snap.DeliveryAddress,
		DeliveryContact: snap.DeliveryContact,
		Tip:             snap.Tip,
		Discount:        snap.Discount,
		Items:           items,
	}
	var receipt gateway.OrderReceipt
	if err := c.do(ctx, http.MethodPost, "/order", body, &receipt); err != nil {
		return gateway.OrderReceipt{}, fmt.Errorf("save order: %w", err)
	}
	if receipt.OrderID == "" {
		return gateway.OrderReceipt{}, errors.New("save order: response has no orderId")
	}
	return receipt, nil
}

// Authorize asks the backend to settle an order.
func (c *Client) Authorize(ctx context.Context, req gateway.PaymentRequest) (gateway.Settlement, error) {
	var s gateway.Settlement
	if err := c.do(ctx, http.MethodPost, "/payment", req, &s); err != nil {
		return gateway.Settlement{}, fmt.Errorf("authorize payment: %w", err)
	}
	return s, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return remoteError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// remoteError turns a non-2xx response into a RemoteError, keeping the
// backend's {error} message when there is one.
func remoteError(resp *http.Response) error {
	re := &gateway.RemoteError{StatusCode: resp.StatusCode}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil {
		return re
	}
	var er errorResponse
	if json.Unmarshal(raw, &er) == nil {
		re.Message = er.Error
	}
	return re
}
