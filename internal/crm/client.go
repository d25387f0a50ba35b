// Package crm предоставляет клиент для выгрузки заказов в RetailCRM.
package crm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/kavara-app/kavara-backend/internal/model"
)

// Client инкапсулирует HTTP-взаимодействие с RetailCRM.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *retryablehttp.Client
}

// NewClient создаёт HTTP-клиент RetailCRM для указанного адреса и ключа API.
func NewClient(baseURL, apiKey string) *Client {
	httpClient := retryablehttp.NewClient()
	httpClient.RetryMax = 3
	httpClient.HTTPClient.Timeout = 10 * time.Second
	httpClient.Logger = nil

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: httpClient,
	}
}

type crmOrderItem struct {
	ProductName string `json:"productName"`
	Quantity    int64  `json:"quantity"`
	Price       int64  `json:"initialPrice"`
}

type crmOrder struct {
	ExternalID    string         `json:"externalId"`
	Number        string         `json:"number"`
	Status        string         `json:"status"`
	TotalSumm     int64          `json:"totalSumm"`
	DiscountSumm  int64          `json:"discountManualAmount"`
	BonusesUsed   int64          `json:"bonusesCreditTotal"`
	Items         []crmOrderItem `json:"items"`
	CustomerNotes string         `json:"customerComment,omitempty"`
}

type crmResponse struct {
	Success      bool   `json:"success"`
	ErrorMessage string `json:"errorMsg,omitempty"`
}

// PushOrder выгружает оплаченный заказ в RetailCRM.
func (c *Client) PushOrder(ctx context.Context, order *model.Order) error {
	if c == nil || c.baseURL == "" {
		return fmt.Errorf("crm client not configured")
	}

	payload := crmOrder{
		ExternalID:   order.ID.String(),
		Number:       order.ID.String(),
		Status:       string(order.Status),
		TotalSumm:    order.TotalPrice,
		DiscountSumm: order.DiscountAmount,
		BonusesUsed:  order.LoyaltyPointsUsed,
	}
	for _, item := range order.Items {
		payload.Items = append(payload.Items, crmOrderItem{
			ProductName: item.Name,
			Quantity:    item.Quantity,
			Price:       item.Price,
		})
	}
	if order.PromoCodeID != nil {
		payload.CustomerNotes = "Промокод: " + order.PromoCodeID.String()
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal order: %w", err)
	}

	form := url.Values{}
	form.Set("apiKey", c.apiKey)
	form.Set("order", string(body))

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/api/v5/orders/create", strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	var result crmResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if !result.Success {
		return fmt.Errorf("crm rejected order: %s", result.ErrorMessage)
	}

	return nil
}
