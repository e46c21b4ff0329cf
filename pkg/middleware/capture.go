package middleware

import (
	"net/http"
	"strconv"
	"time"
	"unicode/utf8"

	"github.com/gt8004/gt8004-go/pkg/telemetry"
	"github.com/rs/zerolog"
)

// DefaultMaxBodySize caps captured bodies at 16 KiB.
const DefaultMaxBodySize = 16 << 10

// CaptureOptions configures the capture middleware. Nil strategies fall back
// to HeaderCustomer, PathTool and ServerErrors.
type CaptureOptions struct {
	// CaptureBody records request and response bodies, truncated to
	// MaxBodySize bytes. The request body is copied as the handler reads it,
	// so a streamed body never holds up the handler.
	CaptureBody bool
	MaxBodySize int

	Customer CustomerExtractor
	Tool     ToolExtractor
	Errors   ErrorClassifier

	// PaymentHeader names the header holding x402 payment JSON.
	PaymentHeader string

	Logger *zerolog.Logger
}

func (o CaptureOptions) withDefaults() CaptureOptions {
	if o.MaxBodySize <= 0 {
		o.MaxBodySize = DefaultMaxBodySize
	}
	if o.Customer == nil {
		o.Customer = HeaderCustomer{}
	}
	if o.Tool == nil {
		o.Tool = PathTool{}
	}
	if o.Errors == nil {
		o.Errors = ServerErrors{}
	}
	if o.PaymentHeader == "" {
		o.PaymentHeader = DefaultPaymentHeader
	}
	return o
}

// Capture builds one log entry per request and hands it to sink once the
// handler returns, including when the handler panics. The response reaching
// the client is not modified, and nothing that goes wrong while capturing is
// surfaced to the request.
func Capture(sink Sink, opts CaptureOptions) func(http.Handler) http.Handler {
	opts = opts.withDefaults()
	log := zerolog.Nop()
	if opts.Logger != nil {
		log = opts.Logger.With().Str("component", "capture").Logger()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			requestID := telemetry.NewRequestID()

			var mirror *bodyMirror
			if opts.CaptureBody && r.Body != nil && r.Body != http.NoBody {
				mirror = mirrorBody(r, opts.MaxBodySize)
			}

			customerID := opts.Customer.CustomerID(r)
			toolName := opts.Tool.ToolName(r)

			var payment Payment
			if raw := r.Header.Get(opts.PaymentHeader); raw != "" {
				var ok bool
				if payment, ok = ParsePayment(raw); !ok {
					paymentParseFailures.Inc()
					log.Debug().Str("request_id", requestID).Msg("ignoring malformed payment header")
				}
			}

			tee := newTeeWriter(w, opts.CaptureBody, opts.MaxBodySize)

			defer func() {
				p := recover()

				status := tee.statusCode()
				if p != nil && !tee.wroteHeader {
					status = http.StatusInternalServerError
				}
				elapsed := float64(time.Since(start).Microseconds()) / 1000

				entry := telemetry.LogEntry{
					RequestID:        requestID,
					CustomerID:       telemetry.String(customerID),
					ToolName:         telemetry.String(toolName),
					Method:           r.Method,
					Path:             r.URL.Path,
					StatusCode:       status,
					ResponseMs:       elapsed,
					ErrorType:        telemetry.String(opts.Errors.ErrorType(status)),
					PaymentAmount:    payment.Amount,
					PaymentTxHash:    payment.TxHash,
					PaymentToken:     payment.Token,
					PaymentPayer:     payment.Payer,
					RequestBodySize:  requestBodySize(r, mirror),
					ResponseBodySize: responseBodySize(tee),
					Timestamp:        time.Now().UTC(),
				}
				if opts.CaptureBody {
					entry.RequestBody = truncateBody(mirror.captured(), opts.MaxBodySize)
					entry.ResponseBody = truncateBody(tee.captured(), opts.MaxBodySize)
					if tee.written > opts.MaxBodySize {
						bodiesTruncated.Inc()
					}
					if mirror != nil && mirror.read > opts.MaxBodySize {
						bodiesTruncated.Inc()
					}
				}

				entriesCaptured.WithLabelValues(statusClass(status)).Inc()
				responseTime.Observe(elapsed)
				emit(sink, entry, log)

				if p != nil {
					panic(p)
				}
			}()

			next.ServeHTTP(tee, r)
		})
	}
}

// truncateBody returns at most max bytes of body, or nil when nothing was
// captured. A UTF-8 text body cut at the limit loses the trailing partial
// character instead of carrying broken bytes onto the wire.
func truncateBody(body []byte, max int) *string {
	if len(body) > max {
		body = body[:max]
	}
	if len(body) == max {
		body = trimPartialRune(body)
	}
	if len(body) == 0 {
		return nil
	}
	s := string(body)
	return &s
}

// trimPartialRune drops an incomplete UTF-8 sequence at the end of b when
// everything before it is valid UTF-8. Binary bodies are left alone.
func trimPartialRune(b []byte) []byte {
	for i := len(b) - 1; i >= 0 && i >= len(b)-utf8.UTFMax; i-- {
		if !utf8.RuneStart(b[i]) {
			continue
		}
		if !utf8.FullRune(b[i:]) && utf8.Valid(b[:i]) {
			return b[:i]
		}
		return b
	}
	return b
}

func requestBodySize(r *http.Request, mirror *bodyMirror) *int {
	if r.ContentLength > 0 || (r.ContentLength == 0 && r.Header.Get("Content-Length") != "") {
		return telemetry.Int(int(r.ContentLength))
	}
	if mirror != nil && mirror.read > 0 {
		return telemetry.Int(mirror.read)
	}
	return nil
}

func responseBodySize(tee *teeWriter) *int {
	if cl := tee.Header().Get("Content-Length"); cl != "" {
		if n, err := strconv.Atoi(cl); err == nil && n >= 0 {
			return telemetry.Int(n)
		}
	}
	if tee.written > 0 {
		return telemetry.Int(tee.written)
	}
	return nil
}

func statusClass(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
