package incremental

import (
	"context"
	"encoding/json"

	"go.trai.ch/kiln/internal/core/domain"
	"go.trai.ch/zerr"
)

// SerializedOutputKey is the output value holding the encoded result of
// ExecuteForValue.
const SerializedOutputKey = "serializedOutput"

// ExecuteForFiles runs a block that only produces files.
func (c *Cache) ExecuteForFiles(
	ctx context.Context,
	key string,
	inputs Inputs,
	block func(ctx context.Context) ([]string, error),
) (domain.IncrementalResult, error) {
	return c.Execute(ctx, key, inputs, func(ctx context.Context) (domain.ExecutionResult, error) {
		files, err := block(ctx)
		if err != nil {
			return domain.ExecutionResult{}, err
		}
		return domain.ExecutionResult{OutputFiles: files}, nil
	})
}

// ExecuteForValue runs a block producing a value of type T. The value is
// stored as JSON and decoded again on a cache hit.
func ExecuteForValue[T any](
	ctx context.Context,
	c *Cache,
	key string,
	inputs Inputs,
	block func(ctx context.Context) (T, error),
) (T, error) {
	var zero T

	res, err := c.Execute(ctx, key, inputs, func(ctx context.Context) (domain.ExecutionResult, error) {
		v, err := block(ctx)
		if err != nil {
			return domain.ExecutionResult{}, err
		}
		data, err := json.Marshal(v)
		if err != nil {
			return domain.ExecutionResult{}, zerr.With(zerr.Wrap(domain.ErrValueEncodeFailed, err.Error()), "key", key)
		}
		return domain.ExecutionResult{OutputValues: map[string]string{SerializedOutputKey: string(data)}}, nil
	})
	if err != nil {
		return zero, err
	}

	data, ok := res.OutputValues[SerializedOutputKey]
	if !ok {
		return zero, zerr.With(zerr.Wrap(domain.ErrValueDecodeFailed, "no stored value"), "key", key)
	}
	var v T
	if err := json.Unmarshal([]byte(data), &v); err != nil {
		return zero, zerr.With(zerr.Wrap(domain.ErrValueDecodeFailed, err.Error()), "key", key)
	}
	return v, nil
}
