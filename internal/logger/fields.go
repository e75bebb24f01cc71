package logger

import (
	"strings"

	"go.uber.org/zap"
)

const (
	// FieldProvider is the structured log field key for the assistant provider name.
	FieldProvider = "assistant_provider"
	// FieldModel is the structured log field key for the assistant model identifier.
	FieldModel = "assistant_model"
	// FieldSession is the structured log field key for the chat session id.
	FieldSession = "session_id"
	// FieldRequest is the structured log field key for the HTTP request id.
	FieldRequest = "request_id"
	// FieldQuery is the structured log field key for the free-text query.
	FieldQuery = "query"
	// FieldCriteria is the structured log field key for the described criteria.
	FieldCriteria = "criteria"

	maxQueryLength = 120
)

// StringField describes a string-valued structured logging field.
type StringField struct {
	Key   string
	Value string
}

// StringFields converts the provided key/value pairs into zap fields, trimming
// whitespace and omitting entries with empty keys or values.
func StringFields(fields ...StringField) []zap.Field {
	result := make([]zap.Field, 0, len(fields))
	for _, field := range fields {
		key := strings.TrimSpace(field.Key)
		if key == "" {
			continue
		}

		value := strings.TrimSpace(field.Value)
		if value == "" {
			continue
		}

		result = append(result, zap.String(key, value))
	}

	return result
}

// WithFields safely attaches the provided fields to the logger.
// A nil logger becomes a no-op logger.
func WithFields(logger *zap.Logger, fields ...zap.Field) *zap.Logger {
	if logger == nil {
		logger = zap.NewNop()
	}

	if len(fields) == 0 {
		return logger
	}

	return logger.With(fields...)
}

// CommonFields returns fields describing the assistant provider and model.
func CommonFields(provider, model string) []zap.Field {
	return StringFields(
		StringField{Key: FieldProvider, Value: provider},
		StringField{Key: FieldModel, Value: model},
	)
}

// WithCommonFields attaches the assistant fields to the provided logger.
func WithCommonFields(logger *zap.Logger, provider, model string) *zap.Logger {
	return WithFields(logger, CommonFields(provider, model)...)
}

// QueryFields returns the query and criteria fields of a search. Long queries
// are cut to keep entries readable.
func QueryFields(query, criteria string) []zap.Field {
	query = strings.TrimSpace(query)
	if r := []rune(query); len(r) > maxQueryLength {
		query = string(r[:maxQueryLength]) + "..."
	}

	return StringFields(
		StringField{Key: FieldQuery, Value: query},
		StringField{Key: FieldCriteria, Value: criteria},
	)
}

// SessionFields returns the chat session and request id fields.
func SessionFields(sessionID, requestID string) []zap.Field {
	return StringFields(
		StringField{Key: FieldSession, Value: sessionID},
		StringField{Key: FieldRequest, Value: requestID},
	)
}
