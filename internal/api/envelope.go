package api

import (
	"bytes"
	"context"
	"encoding/json"
	"time"

	"github.com/go-viper/mapstructure/v2"

	"github.com/aravindh-murugesan/paperscout-go/internal/transport"
)

// envelope is the wrapper every backend reply uses. A call succeeded only
// when code is 0 and success is true.
type envelope struct {
	Code    int    `json:"code"`
	Success bool   `json:"success"`
	Message string `json:"message"`
	Other   any    `json:"other"`
	Data    any    `json:"data"`
}

const defaultFailureMessage = "API error"

// Do performs Request and decodes the envelope's data into T. A rejected
// envelope becomes a KindBusiness error carrying the backend message; data
// that does not fit T becomes a KindValidation error. Both are recorded by
// the reporter.
func Do[T any](ctx context.Context, c *Client, endpoint string, opts RequestOptions, useRetry bool) (T, error) {
	var out T

	raw, err := c.Request(ctx, endpoint, opts, useRetry)
	if err != nil {
		return out, err
	}

	op, source := splitEndpoint(endpoint, opts.Query)
	if err := decodeEnvelope(raw, op, opts.FailureMessage, &out); err != nil {
		return out, c.reporter.HandleAPIError(ctx, err, source, 0)
	}
	return out, nil
}

func decodeEnvelope(raw []byte, op, failureMessage string, out any) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var env envelope
	if err := dec.Decode(&env); err != nil {
		return &transport.Error{Kind: transport.KindValidation, Op: op, Message: "malformed response", Err: err}
	}
	if env.Code != 0 || !env.Success {
		msg := env.Message
		if msg == "" {
			msg = failureMessage
		}
		if msg == "" {
			msg = defaultFailureMessage
		}
		return &transport.Error{Kind: transport.KindBusiness, Op: op, Message: msg}
	}

	if err := decodeData(env.Data, out); err != nil {
		return &transport.Error{Kind: transport.KindValidation, Op: op, Message: "unexpected response data", Err: err}
	}
	return nil
}

// decodeData maps the loosely typed JSON data onto out. Weak typing absorbs
// the backend's habit of sending numbers as strings and vice versa.
func decodeData(data, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeHookFunc(time.RFC3339),
		),
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	return dec.Decode(data)
}
