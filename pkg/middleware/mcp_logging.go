package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-ask/pkg/logging"
)

// maxLoggedBody bounds how much of an MCP request is buffered for logging.
const maxLoggedBody = 64 << 10

// MCPRequestLogger returns middleware that logs MCP JSON-RPC calls at DEBUG
// level: method, tool name, sanitized arguments, outcome and duration.
// Pass nil logger to disable logging.
func MCPRequestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if logger == nil {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			bodyBytes, err := io.ReadAll(io.LimitReader(r.Body, maxLoggedBody))
			if err != nil {
				logger.Error("Failed to read MCP request body", zap.Error(err))
				http.Error(w, "failed to read request body", http.StatusBadRequest)
				return
			}
			// Anything past the limit is still forwarded untouched.
			r.Body = io.NopCloser(io.MultiReader(bytes.NewReader(bodyBytes), r.Body))

			var rpcReq jsonRPCRequest
			if err := json.Unmarshal(bodyBytes, &rpcReq); err != nil {
				logger.Debug("Failed to parse MCP request JSON", zap.Error(err))
			}
			toolName := rpcReq.Params.Name

			logger.Debug("MCP request",
				zap.String("method", rpcReq.Method),
				zap.String("tool", toolName),
				zap.Any("arguments", sanitizeArguments(rpcReq.Params.Arguments)),
			)

			recorder := &mcpResponseRecorder{ResponseWriter: w, body: &bytes.Buffer{}}
			start := time.Now()
			next.ServeHTTP(recorder, r)
			duration := time.Since(start)

			var rpcResp jsonRPCResponse
			if err := json.Unmarshal(recorder.body.Bytes(), &rpcResp); err != nil {
				// Streamed (SSE) responses are not plain JSON.
				logger.Debug("MCP response", zap.String("tool", toolName), zap.Duration("duration", duration))
				return
			}

			switch {
			case rpcResp.Error != nil:
				logger.Debug("MCP response error",
					zap.String("tool", toolName),
					zap.Int("error_code", rpcResp.Error.Code),
					zap.String("error_message", rpcResp.Error.Message),
					zap.Duration("duration", duration),
				)
			case rpcResp.Result.IsError:
				logger.Debug("MCP tool error",
					zap.String("tool", toolName),
					zap.Duration("duration", duration),
				)
			default:
				logger.Debug("MCP response success",
					zap.String("tool", toolName),
					zap.Duration("duration", duration),
				)
			}
		})
	}
}

type jsonRPCRequest struct {
	Method string `json:"method"`
	Params struct {
		Name      string         `json:"name"`
		Arguments map[string]any `json:"arguments"`
	} `json:"params"`
}

type jsonRPCResponse struct {
	Result struct {
		IsError bool `json:"isError"`
	} `json:"result"`
	Error *jsonRPCError `json:"error"`
}

type jsonRPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type mcpResponseRecorder struct {
	http.ResponseWriter
	body *bytes.Buffer
}

func (r *mcpResponseRecorder) Write(b []byte) (int, error) {
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}

func (r *mcpResponseRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

var sensitiveKeywords = []string{"password", "secret", "token", "key", "credential"}

// sanitizeArguments redacts secret-looking keys and passes free text through
// the query sanitizer, which truncates and strips credentials.
func sanitizeArguments(args map[string]any) map[string]any {
	if args == nil {
		return nil
	}

	result := make(map[string]any, len(args))
	for k, v := range args {
		lowerKey := strings.ToLower(k)
		redacted := false
		for _, keyword := range sensitiveKeywords {
			if strings.Contains(lowerKey, keyword) {
				redacted = true
				break
			}
		}
		if redacted {
			result[k] = "[REDACTED]"
			continue
		}

		if s, ok := v.(string); ok {
			result[k] = logging.SanitizeQuery(s)
		} else {
			result[k] = v
		}
	}
	return result
}
