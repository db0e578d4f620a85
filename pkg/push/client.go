package push

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	webpush "github.com/SherClockHolmes/webpush-go"
	"github.com/whistl-app/whistl-backend/pkg/config"
)

// Sender delivers web push payloads to a browser subscription.
type Sender interface {
	Send(ctx context.Context, sub Subscription, payload Payload) error
}

// Subscription mirrors the browser PushSubscription fields we persist.
type Subscription struct {
	Endpoint string
	P256DH   string
	Auth     string
}

// Payload is the JSON body shown by the service worker.
type Payload struct {
	Title   string `json:"title"`
	Message string `json:"message"`
	Link    string `json:"link,omitempty"`
}

// ErrSubscriptionGone signals the endpoint rejected the subscription
// permanently and it should be removed.
var ErrSubscriptionGone = errors.New("push subscription no longer valid")

var errWebPushNotConfigured = errors.New("vapid key pair is required")

type Client struct {
	opts webpush.Options
}

// NewClient creates a web push sender from VAPID config.
func NewClient(cfg config.WebPushConfig) (*Client, error) {
	if strings.TrimSpace(cfg.VAPIDPublicKey) == "" || strings.TrimSpace(cfg.VAPIDPrivateKey) == "" {
		return nil, errWebPushNotConfigured
	}
	return &Client{
		opts: webpush.Options{
			Subscriber:      cfg.Subscriber,
			VAPIDPublicKey:  cfg.VAPIDPublicKey,
			VAPIDPrivateKey: cfg.VAPIDPrivateKey,
			TTL:             60,
		},
	}, nil
}

func (c *Client) Send(ctx context.Context, sub Subscription, payload Payload) error {
	if c == nil {
		return errWebPushNotConfigured
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	target := &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256DH,
			Auth:   sub.Auth,
		},
	}

	opts := c.opts
	resp, err := webpush.SendNotificationWithContext(ctx, body, target, &opts)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusNotFound, http.StatusGone:
		return ErrSubscriptionGone
	}
	if resp.StatusCode >= 400 {
		return errors.New("push endpoint returned " + resp.Status)
	}
	return nil
}
