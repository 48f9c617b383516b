package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/avast/retry-go/v5"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// ThrottleError — приемник вебхука попросил сбавить темп (429 + Retry-After).
type ThrottleError struct {
	RetryAfter time.Duration
	Cause      error
}

func (e *ThrottleError) Error() string {
	return fmt.Sprintf("throttled: retry after %v (cause: %v)", e.RetryAfter, e.Cause)
}

// WebhookSender — канал доставки карточек в чат.
type WebhookSender interface {
	Post(ctx context.Context, url string, payload map[string]interface{}) error
}

// WebhookChannel оборачивает HTTP-доставку в слой надежности:
// Rate Limiter -> Circuit Breaker -> Retry с уважением к Retry-After.
// Это весь «транспортный» ретрай, который полагается уведомлениям;
// выше канала повторов нет.
type WebhookChannel struct {
	client  *http.Client
	cb      *gobreaker.CircuitBreaker
	limiter *rate.Limiter
	logger  *zap.Logger
}

func NewWebhookChannel(timeout time.Duration, logger *zap.Logger) *WebhookChannel {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	// Настройка предохранителя
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "notify-webhook",
		MaxRequests: 3,
		Interval:    5 * time.Second,
		Timeout:     30 * time.Second, // Время, через которое CB попробует "закрыться"
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			// Более 5 ошибок подряд — открываемся (блокируем трафик)
			return counts.ConsecutiveFailures > 5
		},
	})

	// Лимитер: чат-вебхуки обычно режут на десятках запросов в секунду
	limiter := rate.NewLimiter(rate.Limit(20), 5)

	return &WebhookChannel{
		client:  &http.Client{Timeout: timeout},
		cb:      cb,
		limiter: limiter,
		logger:  logger.Named("webhook"),
	}
}

func (w *WebhookChannel) Post(ctx context.Context, url string, payload map[string]interface{}) error {
	// 1. Rate Limiter
	if err := w.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit exceeded: %w", err)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	// 2. Circuit Breaker
	_, err = w.cb.Execute(func() (interface{}, error) {
		r := retry.New(
			retry.Context(ctx),
			retry.Attempts(3),
			// Умный расчет задержки
			retry.DelayType(func(n uint, err error, config retry.DelayContext) time.Duration {
				// Приемник вернул ThrottleError (вычитан Retry-After заголовок)
				var tErr *ThrottleError
				if errors.As(err, &tErr) {
					return tErr.RetryAfter
				}

				// Сетевой лаг, 500-ка — стандартный экспоненциальный бэкофф
				return retry.BackOffDelay(n, err, config)
			}),
		)

		retryErr := r.Do(func() error {
			tCtx, cancel := context.WithTimeout(ctx, w.client.Timeout)
			defer cancel()
			return w.post(tCtx, url, body)
		})

		return nil, retryErr
	})
	return err
}

// post — одна попытка доставки.
func (w *WebhookChannel) post(ctx context.Context, url string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook post: %w", err)
	}
	defer func() {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return &ThrottleError{
			RetryAfter: retryAfter(resp),
			Cause:      fmt.Errorf("webhook returned %d", resp.StatusCode),
		}
	case resp.StatusCode >= 400:
		return fmt.Errorf("webhook returned %d", resp.StatusCode)
	}
	return nil
}

// retryAfter вычитывает Retry-After (секунды); без заголовка — секунда.
func retryAfter(resp *http.Response) time.Duration {
	if v := resp.Header.Get("Retry-After"); v != "" {
		if sec, err := strconv.Atoi(v); err == nil && sec > 0 {
			return time.Duration(sec) * time.Second
		}
	}
	return time.Second
}
