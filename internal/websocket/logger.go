package websocket

import (
	"go.uber.org/zap"

	"support-chat/pkg/logger"
)

// Logger provides structured logging for gateway events
type Logger struct {
	logger *zap.Logger
}

func NewLogger(l *logger.Logger) *Logger {
	return &Logger{logger: logger.OrNop(l).Component("websocket").Logger}
}

func (l *Logger) Info(event string, client *Client, fields ...zap.Field) {
	l.logger.Info("websocket_event", append(clientFields(event, client), fields...)...)
}

func (l *Logger) Warn(event string, client *Client, fields ...zap.Field) {
	l.logger.Warn("websocket_warning", append(clientFields(event, client), fields...)...)
}

func (l *Logger) Error(event string, client *Client, err error, fields ...zap.Field) {
	all := append(clientFields(event, client), zap.Error(err))
	l.logger.Error("websocket_error", append(all, fields...)...)
}

func clientFields(event string, client *Client) []zap.Field {
	fields := []zap.Field{zap.String("event", event)}
	if client != nil {
		fields = append(fields,
			zap.String("user_id", client.UserID.String()),
			zap.String("client_id", client.ID))
	}
	return fields
}
