// Package yclients — client.go реализует REST-клиент YClients API v2.
// Это единственное место в сервисе, которое ходит в CRM по сети.
//
// Политика ошибок: сетевые и HTTP-ошибки возвращаются вызывающему как есть
// (обёрнутые), решение «пропустить или прервать» принимает вызывающий слой.
package yclients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	log "github.com/sirupsen/logrus"

	"ashlounge.ru/loyalty-bot/internal/common"
	"ashlounge.ru/loyalty-bot/internal/config"
	"ashlounge.ru/loyalty-bot/internal/phone"
)

// LoyaltyTransactionTitle — подпись транзакций бота на карте лояльности.
const LoyaltyTransactionTitle = "Бонусы бота"

// Client — клиент YClients API.
type Client struct {
	baseURL      string
	partnerToken string
	userToken    string
	companyID    int64
	cardTypeID   int64
	http         *http.Client
}

// NewClient создаёт клиент с таймаутами на уровне транспорта.
func NewClient(cfg *config.Config) *Client {
	return &Client{
		baseURL:      cfg.YClientsAPIBaseURL,
		partnerToken: cfg.YClientsPartnerToken,
		userToken:    cfg.YClientsUserToken,
		companyID:    cfg.YClientsCompanyID,
		cardTypeID:   cfg.YClientsCardTypeID,
		http: &http.Client{
			Timeout: cfg.YClientsTimeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout:   10 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				MaxIdleConns:        100,
				IdleConnTimeout:     90 * time.Second,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		},
	}
}

// apiEnvelope — типовой ответ v2: {"success": true, "data": ..., "meta": ...}.
type apiEnvelope struct {
	Success *bool           `json:"success"`
	Data    json.RawMessage `json:"data"`
}

// do выполняет запрос и возвращает поле data из конверта ответа.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any) (json.RawMessage, error) {
	u, err := url.Parse(fmt.Sprintf("%s/%s", c.baseURL, path))
	if err != nil {
		return nil, fmt.Errorf("некорректный URL %q: %w", path, err)
	}
	if query != nil {
		u.RawQuery = query.Encode()
	}

	var reqBody io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("сериализация тела запроса: %w", err)
		}
		reqBody = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reqBody)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/vnd.yclients.v2+json")
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s, User %s", c.partnerToken, c.userToken))

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("запрос %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("чтение ответа %s: %w", path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		log.WithFields(log.Fields{
			"method": method,
			"path":   path,
			"status": resp.StatusCode,
			"body":   truncate(string(raw), 300),
		}).Warn("[YCLIENTS] ошибка API")
		return nil, fmt.Errorf("yclients %s %s: status=%d", method, path, resp.StatusCode)
	}

	// DELETE может вернуть пустое тело
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, nil
	}

	var env apiEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("некорректный JSON от %s: %w", path, err)
	}
	if env.Success != nil && !*env.Success {
		return nil, fmt.Errorf("yclients %s %s: success=false", method, path)
	}
	return env.Data, nil
}

// GetAllRecords возвращает все записи компании за период.
// GET /records/{company_id}?start_date=...&end_date=...
func (c *Client) GetAllRecords(ctx context.Context, startDate, endDate time.Time, includeDeleted bool) ([]Record, error) {
	q := url.Values{}
	q.Set("start_date", startDate.Format("2006-01-02"))
	q.Set("end_date", endDate.Format("2006-01-02"))
	q.Set("page", "1")
	q.Set("count", "100")
	if includeDeleted {
		q.Set("include_deleted", "1")
		q.Set("show_deleted", "1")
	}

	data, err := c.do(ctx, http.MethodGet, fmt.Sprintf("records/%d", c.companyID), q, nil)
	if err != nil {
		return nil, err
	}

	var records []Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("разбор списка записей: %w", err)
	}
	log.WithFields(log.Fields{
		"start": startDate.Format("2006-01-02"),
		"end":   endDate.Format("2006-01-02"),
		"count": len(records),
	}).Info("[YCLIENTS] записи получены")
	return records, nil
}

// GetClientRecords возвращает записи одного клиента за период.
func (c *Client) GetClientRecords(ctx context.Context, clientID int64, startDate, endDate time.Time) ([]Record, error) {
	q := url.Values{}
	q.Set("client_id", strconv.FormatInt(clientID, 10))
	q.Set("start_date", startDate.Format("2006-01-02"))
	q.Set("end_date", endDate.Format("2006-01-02"))
	q.Set("page", "1")
	q.Set("count", "100")

	data, err := c.do(ctx, http.MethodGet, fmt.Sprintf("records/%d", c.companyID), q, nil)
	if err != nil {
		return nil, err
	}

	var records []Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("разбор записей клиента %d: %w", clientID, err)
	}
	return records, nil
}

// GetRecordByID возвращает одну запись.
// GET /record/{company_id}/{record_id}
func (c *Client) GetRecordByID(ctx context.Context, recordID int64) (*Record, error) {
	data, err := c.do(ctx, http.MethodGet, fmt.Sprintf("record/%d/%d", c.companyID, recordID), nil, nil)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("запись %d не найдена", recordID)
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("разбор записи %d: %w", recordID, err)
	}
	return &rec, nil
}

// DeleteRecord удаляет запись (отмена через бота).
// DELETE /record/{company_id}/{record_id}
func (c *Client) DeleteRecord(ctx context.Context, recordID int64) (bool, error) {
	_, err := c.do(ctx, http.MethodDelete, fmt.Sprintf("record/%d/%d", c.companyID, recordID), nil, nil)
	if err != nil {
		return false, err
	}
	log.WithField("record_id", recordID).Info("[YCLIENTS] запись удалена")
	return true, nil
}

// FindClientByPhone ищет клиента по телефону.
// Возвращает (nil, nil), если клиента нет — это не ошибка.
func (c *Client) FindClientByPhone(ctx context.Context, phoneRaw string) (*ClientInfo, error) {
	q := url.Values{}
	q.Set("phone", phoneRaw)
	q.Set("page", "1")
	q.Set("count", "20")

	data, err := c.do(ctx, http.MethodGet, fmt.Sprintf("clients/%d", c.companyID), q, nil)
	if err != nil {
		return nil, err
	}

	var clients []ClientInfo
	if err := json.Unmarshal(data, &clients); err != nil {
		return nil, fmt.Errorf("разбор списка клиентов: %w", err)
	}
	if len(clients) == 0 {
		log.WithField("phone", phoneRaw).Info("[YCLIENTS] клиент по телефону не найден")
		return nil, nil
	}
	return &clients[0], nil
}

// CreateClient создаёт клиента в YClients.
func (c *Client) CreateClient(ctx context.Context, phoneRaw, name string) (*ClientInfo, error) {
	payload := map[string]any{"phone": phoneRaw}
	if name != "" {
		payload["name"] = name
	}

	data, err := c.do(ctx, http.MethodPost, fmt.Sprintf("clients/%d", c.companyID), nil, payload)
	if err != nil {
		return nil, err
	}

	var client ClientInfo
	if err := json.Unmarshal(data, &client); err != nil {
		return nil, fmt.Errorf("разбор созданного клиента: %w", err)
	}
	log.WithFields(log.Fields{"client_id": client.ID, "phone": phoneRaw}).Info("[YCLIENTS] клиент создан")
	return &client, nil
}

// GetClientLoyaltyCards возвращает карты лояльности клиента по телефону.
// GET /loyalty/cards/{phone}/0/{company_id}; group_id=0 — поиск по всей сети.
func (c *Client) GetClientLoyaltyCards(ctx context.Context, phoneRaw string) ([]LoyaltyCard, error) {
	clean := phone.Normalize(phoneRaw)
	if clean == "" {
		return nil, fmt.Errorf("некорректный телефон %q", phoneRaw)
	}

	data, err := c.do(ctx, http.MethodGet, fmt.Sprintf("loyalty/cards/%s/0/%d", clean, c.companyID), nil, nil)
	if err != nil {
		return nil, err
	}

	var cards []LoyaltyCard
	if err := json.Unmarshal(data, &cards); err != nil {
		// пустой data или объект вместо списка — карт нет
		return nil, nil
	}
	return cards, nil
}

// IssueLoyaltyCard выдаёт клиенту карту лояльности бота по телефону.
// POST /loyalty/cards/{company_id}
func (c *Client) IssueLoyaltyCard(ctx context.Context, phoneRaw string) (*LoyaltyCard, error) {
	clean := phone.Normalize(phoneRaw)
	if clean == "" {
		return nil, fmt.Errorf("некорректный телефон %q", phoneRaw)
	}
	phoneNum, err := strconv.ParseInt(clean, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("некорректный телефон %q", phoneRaw)
	}

	payload := map[string]any{
		"loyalty_card_type_id": c.cardTypeID,
		"phone":                phoneNum,
	}
	data, err := c.do(ctx, http.MethodPost, fmt.Sprintf("loyalty/cards/%d", c.companyID), nil, payload)
	if err != nil {
		return nil, err
	}

	var card LoyaltyCard
	if err := json.Unmarshal(data, &card); err != nil {
		return nil, fmt.Errorf("разбор выданной карты: %w", err)
	}
	log.WithFields(log.Fields{"phone": clean, "card_id": card.ID}).Info("[YCLIENTS] карта лояльности выдана")
	return &card, nil
}

// ApplyLoyaltyTransaction начисляет (amount > 0) или списывает (amount < 0)
// бонусы на карте лояльности.
// POST /company/{company_id}/loyalty/cards/{card_id}/manual_transaction
func (c *Client) ApplyLoyaltyTransaction(ctx context.Context, cardID, amount int64, title string) error {
	if title == "" {
		title = LoyaltyTransactionTitle
	}
	payload := map[string]any{"amount": amount, "title": title}

	_, err := c.do(ctx, http.MethodPost,
		fmt.Sprintf("company/%d/loyalty/cards/%d/manual_transaction", c.companyID, cardID), nil, payload)
	if err != nil {
		return err
	}
	log.WithFields(log.Fields{"card_id": cardID, "amount": amount}).Info("[YCLIENTS] транзакция по карте выполнена")
	return nil
}

// GetOrCreateBotLoyaltyCard возвращает id карты бота для клиента,
// при необходимости выдавая новую по номеру телефона.
func (c *Client) GetOrCreateBotLoyaltyCard(ctx context.Context, phoneRaw string) (int64, error) {
	cards, err := c.GetClientLoyaltyCards(ctx, phoneRaw)
	if err != nil {
		return 0, err
	}
	for _, card := range cards {
		if card.TypeID == c.cardTypeID {
			return card.ID, nil
		}
	}

	card, err := c.IssueLoyaltyCard(ctx, phoneRaw)
	if err != nil {
		return 0, err
	}
	return card.ID, nil
}

// GetBotCardBalance возвращает баланс карты бота. Если карты нужного
// типа у клиента нет, возвращает common.ErrNoLoyaltyCard: отсутствие
// карты не то же самое, что нулевой баланс.
func (c *Client) GetBotCardBalance(ctx context.Context, phoneRaw string) (int64, error) {
	cards, err := c.GetClientLoyaltyCards(ctx, phoneRaw)
	if err != nil {
		return 0, err
	}
	for _, card := range cards {
		if card.TypeID == c.cardTypeID {
			return int64(card.Balance), nil
		}
	}
	return 0, common.ErrNoLoyaltyCard
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
