package solana

import (
	"encoding/json"
	"errors"
	"fmt"
)

// JSON-RPC server error codes returned by Solana validators.
const (
	CodeBlockCleanedUp                 = -32001
	CodeSendTransactionPreflightFailed = -32002
	CodeTransactionSignatureVerify     = -32003
	CodeBlockNotAvailable              = -32004
	CodeNodeUnhealthy                  = -32005
	CodeTransactionPrecompileVerify    = -32006
	CodeMinContextSlotNotReached       = -32016
)

// RPCError is a JSON-RPC 2.0 error object.
type RPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("RPC error %d: %s", e.Code, e.Message)
}

// SimulationErr returns the transaction error reported by a failed preflight
// simulation, e.g. "BlockhashNotFound". Empty if not present.
func (e *RPCError) SimulationErr() string {
	if len(e.Data) == 0 {
		return ""
	}
	var data struct {
		Err json.RawMessage `json:"err"`
	}
	if err := json.Unmarshal(e.Data, &data); err != nil || len(data.Err) == 0 || string(data.Err) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(data.Err, &s); err == nil {
		return s
	}
	return string(data.Err)
}

// AsRPCError extracts an RPCError from an error chain.
func AsRPCError(err error) (*RPCError, bool) {
	var rpcErr *RPCError
	if errors.As(err, &rpcErr) {
		return rpcErr, true
	}
	return nil, false
}

// IsPreflightRejection reports whether the node refused the transaction before
// it entered the processing pipeline: a failed simulation or a node that is
// too far behind to simulate it.
func IsPreflightRejection(err error) bool {
	rpcErr, ok := AsRPCError(err)
	if !ok {
		return false
	}
	switch rpcErr.Code {
	case CodeSendTransactionPreflightFailed, CodeNodeUnhealthy, CodeMinContextSlotNotReached:
		return true
	default:
		return false
	}
}

// FormatTxError renders a transaction error value from status or meta.
func FormatTxError(v interface{}) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}
