package logger

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestLoggerErrorIncludesContextFields(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(Options{ServiceName: "test", Level: ParseLevel("debug"), Output: buf})

	ctx := log.WithAccountID(context.Background(), "cust-1")
	ctx = log.WithTransactionID(ctx, "tx-1")

	log.Error(ctx, "boom", errors.New("boom"))

	assert.Contains(t, buf.String(), `"account_id":"cust-1"`)
	assert.Contains(t, buf.String(), `"transaction_id":"tx-1"`)
	assert.Contains(t, buf.String(), `"error":"boom"`)
}

func TestLoggerRespectsLevel(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(Options{ServiceName: "test", Level: ParseLevel("warn"), Output: buf})

	log.Info(context.Background(), "quiet")
	assert.Empty(t, buf.String())

	log.Warn(context.Background(), "loud")
	assert.Contains(t, buf.String(), "loud")
}

func TestParseLevelDefaults(t *testing.T) {
	assert.Equal(t, zerolog.InfoLevel, ParseLevel(""))
	assert.Equal(t, zerolog.InfoLevel, ParseLevel("invalid"))
	assert.Equal(t, zerolog.DebugLevel, ParseLevel(" DEBUG "))
}

func TestLoggerScopesDoNotLeak(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(Options{ServiceName: "wallet", Output: buf})

	parent := log.WithRequestID(context.Background(), "req-1")
	child := log.WithFields(parent, map[string]any{"reference": "order-1"})

	log.Info(parent, "parent")
	assert.NotContains(t, buf.String(), "order-1")

	buf.Reset()
	log.Info(child, "child")
	assert.Contains(t, buf.String(), `"request_id":"req-1"`)
	assert.Contains(t, buf.String(), `"reference":"order-1"`)
	assert.Contains(t, buf.String(), `"service":"wallet"`)
}

func TestLoggerWarnStack(t *testing.T) {
	buf := &bytes.Buffer{}
	New(Options{Output: buf}).Warn(context.Background(), "plain")
	assert.NotContains(t, buf.String(), `"stack"`)

	buf.Reset()
	New(Options{Output: buf, WarnStack: true}).Warn(context.Background(), "traced")
	assert.Contains(t, buf.String(), `"stack"`)
}

func TestLoggerConsoleFormat(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(Options{Format: FormatConsole, Output: buf})

	log.Info(log.WithAccountID(context.Background(), "cust-1"), "settled")

	assert.Contains(t, buf.String(), "settled")
	assert.Contains(t, buf.String(), "account_id=")
	assert.NotContains(t, buf.String(), `{"level"`)
}

func TestNopDiscards(t *testing.T) {
	log := Nop()
	ctx := log.WithField(context.Background(), "k", "v")
	log.Error(ctx, "ignored", errors.New("x"))
}
