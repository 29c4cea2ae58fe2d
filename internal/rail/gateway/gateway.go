// Package gateway implements rail.Client against the provider gateway, an
// HTTP JSON sidecar that speaks each provider's own protocol.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/example/railbot/internal/rail"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	challengeHeader = "X-Challenge-Token"
	requestIDHeader = "X-Request-Id"
)

type Dialer struct {
	baseURL  string
	provider rail.Provider
	hc       *http.Client
	log      *zap.Logger
}

func NewDialer(baseURL string, p rail.Provider, log *zap.Logger) *Dialer {
	return &Dialer{
		baseURL:  strings.TrimRight(baseURL, "/"),
		provider: p,
		hc:       &http.Client{Timeout: 20 * time.Second},
		log:      log.Named("gateway").With(zap.String("provider", string(p))),
	}
}

type loginRequest struct {
	User     string `json:"user"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token string `json:"token"`
}

func (d *Dialer) Login(ctx context.Context, user, pass string) (rail.Client, error) {
	c := &Client{d: d}
	var resp loginResponse
	status, err := c.call(ctx, http.MethodPost, "login", loginRequest{User: user, Password: pass}, &resp)
	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		return nil, fmt.Errorf("%w: %v", rail.ErrAuth, err)
	}
	if err != nil {
		return nil, err
	}
	if resp.Token == "" {
		return nil, errors.New("gateway: login returned no session token")
	}
	c.token = resp.Token
	d.log.Debug("logged in")
	return c, nil
}

// Client is one authenticated provider session.
type Client struct {
	d     *Dialer
	token string

	mu        sync.Mutex
	challenge string
}

func (c *Client) Provider() rail.Provider { return c.d.provider }

type searchRequest struct {
	Dep                string                `json:"dep"`
	Arr                string                `json:"arr"`
	Date               string                `json:"date"`
	Time               string                `json:"time"`
	Passengers         []rail.PassengerGroup `json:"passengers"`
	IncludeUnavailable bool                  `json:"include_unavailable"`
}

func (c *Client) Search(ctx context.Context, q rail.SearchQuery) ([]rail.Train, error) {
	var resp struct {
		Trains []rail.Train `json:"trains"`
	}
	req := searchRequest{
		Dep: q.Dep, Arr: q.Arr, Date: q.Date, Time: q.Time,
		Passengers: q.Passengers, IncludeUnavailable: q.IncludeUnavailable,
	}
	if _, err := c.call(ctx, http.MethodPost, "search", req, &resp); err != nil {
		return nil, err
	}
	for i := range resp.Trains {
		resp.Trains[i].Provider = c.d.provider
	}
	return resp.Trains, nil
}

type reserveRequest struct {
	Train      rail.Train            `json:"train"`
	Passengers []rail.PassengerGroup `json:"passengers"`
	Seat       rail.SeatPolicy       `json:"seat"`
}

type reservationResponse struct {
	Reservation rail.Reservation `json:"reservation"`
}

func (c *Client) Reserve(ctx context.Context, t rail.Train, passengers []rail.PassengerGroup, seat rail.SeatPolicy) (rail.Reservation, error) {
	return c.reserve(ctx, "reserve", t, passengers, seat)
}

func (c *Client) ReserveStandby(ctx context.Context, t rail.Train, passengers []rail.PassengerGroup, seat rail.SeatPolicy) (rail.Reservation, error) {
	if !c.d.provider.Capabilities().DedicatedStandby {
		return rail.Reservation{}, fmt.Errorf("gateway: %s has no standby reservation", c.d.provider)
	}
	return c.reserve(ctx, "reserve-standby", t, passengers, seat)
}

func (c *Client) reserve(ctx context.Context, op string, t rail.Train, passengers []rail.PassengerGroup, seat rail.SeatPolicy) (rail.Reservation, error) {
	var resp reservationResponse
	if _, err := c.call(ctx, http.MethodPost, op, reserveRequest{Train: t, Passengers: passengers, Seat: seat}, &resp); err != nil {
		return rail.Reservation{}, err
	}
	resp.Reservation.Provider = c.d.provider
	return resp.Reservation, nil
}

type payRequest struct {
	Reservation  rail.Reservation `json:"reservation"`
	Number       string           `json:"number"`
	Password     string           `json:"password"`
	Birthday     string           `json:"birthday"`
	Expire       string           `json:"expire"`
	Installments int              `json:"installments"`
	CardType     string           `json:"card_type"`
}

func (c *Client) PayWithCard(ctx context.Context, r rail.Reservation, p rail.Payment) (bool, error) {
	var resp struct {
		Paid bool `json:"paid"`
	}
	req := payRequest{
		Reservation: r,
		Number:      p.Number, Password: p.Password, Birthday: p.Birthday, Expire: p.Expire,
		Installments: p.Installments, CardType: p.CardType,
	}
	if _, err := c.call(ctx, http.MethodPost, "pay", req, &resp); err != nil {
		return false, err
	}
	return resp.Paid, nil
}

func (c *Client) Cancel(ctx context.Context, r rail.Reservation) (bool, error) {
	var resp struct {
		Cancelled bool `json:"cancelled"`
	}
	if _, err := c.call(ctx, http.MethodPost, "cancel", struct {
		Reservation rail.Reservation `json:"reservation"`
	}{r}, &resp); err != nil {
		return false, err
	}
	return resp.Cancelled, nil
}

func (c *Client) Reservations(ctx context.Context) ([]rail.Reservation, error) {
	var resp struct {
		Reservations []rail.Reservation `json:"reservations"`
	}
	if _, err := c.call(ctx, http.MethodGet, "reservations", nil, &resp); err != nil {
		return nil, err
	}
	for i := range resp.Reservations {
		resp.Reservations[i].Provider = c.d.provider
	}
	return resp.Reservations, nil
}

func (c *Client) ClearChallenge() {
	c.mu.Lock()
	c.challenge = ""
	c.mu.Unlock()
}

type errorBody struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// call sends one request and decodes a 2xx body into out. Provider failures
// come back as *rail.Error; transport failures are returned as is.
func (c *Client) call(ctx context.Context, method, op string, in, out any) (int, error) {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return 0, err
		}
		body = bytes.NewReader(b)
	}
	url := fmt.Sprintf("%s/v1/%s/%s", c.d.baseURL, strings.ToLower(string(c.d.provider)), op)
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return 0, err
	}
	req.Header.Set("accept", "application/json")
	if in != nil {
		req.Header.Set("content-type", "application/json")
	}
	req.Header.Set(requestIDHeader, uuid.NewString())
	if c.token != "" {
		req.Header.Set("authorization", "Bearer "+c.token)
	}
	c.mu.Lock()
	if c.challenge != "" {
		req.Header.Set(challengeHeader, c.challenge)
	}
	c.mu.Unlock()

	res, err := c.d.hc.Do(req)
	if err != nil {
		return 0, err
	}
	defer res.Body.Close()

	if tok := res.Header.Get(challengeHeader); tok != "" {
		c.mu.Lock()
		c.challenge = tok
		c.mu.Unlock()
	}

	b, err := io.ReadAll(io.LimitReader(res.Body, 4<<20))
	if err != nil {
		return res.StatusCode, err
	}

	if res.StatusCode >= 400 {
		var eb errorBody
		_ = json.Unmarshal(b, &eb)
		msg := eb.Error.Message
		switch {
		case msg != "":
			re := rail.NewError(c.d.provider, msg)
			if res.StatusCode == http.StatusUnauthorized && op != "login" {
				re.Kind = rail.KindSessionExpired
			}
			return res.StatusCode, re
		case res.StatusCode == http.StatusUnauthorized && op != "login":
			return res.StatusCode, &rail.Error{Provider: c.d.provider, Kind: rail.KindSessionExpired, Message: "session expired"}
		default:
			return res.StatusCode, fmt.Errorf("gateway: %s %s: status %d", method, op, res.StatusCode)
		}
	}

	if out != nil && len(b) > 0 {
		if err := json.Unmarshal(b, out); err != nil {
			return res.StatusCode, fmt.Errorf("gateway: decode %s: %w", op, err)
		}
	}
	return res.StatusCode, nil
}
