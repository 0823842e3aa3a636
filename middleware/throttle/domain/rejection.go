package domain

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// ErrThrottled é o sentinel para errors.Is sobre uma *Rejection.
var ErrThrottled = errors.New("throttle: quota exceeded")

// httpDateLayout é o IMF-fixdate (mesmo layout de net/http.TimeFormat).
const httpDateLayout = "Mon, 02 Jan 2006 15:04:05 GMT"

type RetryAfterStyle int

const (
	RetryAfterDeltaSeconds RetryAfterStyle = iota
	RetryAfterHTTPDate
)

func (s RetryAfterStyle) String() string {
	switch s {
	case RetryAfterHTTPDate:
		return "http-date"
	default:
		return "delta-seconds"
	}
}

func ParseRetryAfterStyle(v string) (RetryAfterStyle, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "", "delta", "delta-seconds", "seconds":
		return RetryAfterDeltaSeconds, nil
	case "http-date", "date":
		return RetryAfterHTTPDate, nil
	}
	return RetryAfterDeltaSeconds, fmt.Errorf("throttle: unknown retry-after style %q", v)
}

// Rejection é o registro produzido quando uma requisição é negada.
// Não é armazenado; cada negação cria o seu.
type Rejection struct {
	Status  int
	Limit   int
	Delta   time.Duration
	ResetAt time.Time
	Key     Key
}

func (r *Rejection) Error() string {
	return fmt.Sprintf("throttle: quota exceeded for key %q, limit=%d, reset in %s", r.Key, r.Limit, r.Delta)
}

func (r *Rejection) Is(target error) bool { return target == ErrThrottled }

// RetryAfter formata o valor do header Retry-After.
// Delta é arredondado para cima, para que um resto de 300ms não vire "0".
func (r *Rejection) RetryAfter(style RetryAfterStyle) string {
	if style == RetryAfterHTTPDate {
		return r.ResetAt.UTC().Format(httpDateLayout)
	}
	secs := int64(math.Ceil(r.Delta.Seconds()))
	if secs < 0 {
		secs = 0
	}
	return strconv.FormatInt(secs, 10)
}

// AsRejection extrai a *Rejection de uma cadeia de erros.
func AsRejection(err error) (*Rejection, bool) {
	var rej *Rejection
	if errors.As(err, &rej) {
		return rej, true
	}
	return nil, false
}
