package sandbox

import (
	"encoding/json"
	"fmt"

	"github.com/holiman/uint256"

	"treasury/core/runtime"
)

func readAmount(env runtime.Env, key []byte) (*uint256.Int, error) {
	out := new(uint256.Int)
	if _, err := env.State.KVGet(key, out); err != nil {
		return nil, err
	}
	return out, nil
}

func amountOrZero(v *uint256.Int) *uint256.Int {
	if v == nil {
		return new(uint256.Int)
	}
	return v
}

// decodeParams accepts either the typed parameter struct or its JSON form, so
// collaborators serve operations built in-process and replayed from JSON.
func decodeParams(params any, out any) error {
	var raw []byte
	switch p := params.(type) {
	case json.RawMessage:
		raw = p
	case []byte:
		raw = p
	default:
		encoded, err := json.Marshal(params)
		if err != nil {
			return fmt.Errorf("sandbox: encode params: %w", err)
		}
		raw = encoded
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("sandbox: decode params: %w", err)
	}
	return nil
}
