package rpc

import (
	"encoding/json"
	"errors"
	"net/http"

	"stablevault/native/common"
)

const (
	jsonRPCVersion  = "2.0"
	maxRequestBytes = 1 << 20 // 1 MiB
)

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeServerError    = -32000
	codeUnauthorized   = -32001
	codeRejected       = -32002
	codeNotFound       = -32004
	codeUnavailable    = -32005
	codeRateLimited    = -32020
)

type RPCRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
	ID      interface{}       `json:"id"`
}

type RPCResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *RPCError   `json:"error,omitempty"`
}

type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`

	status int
}

func (e *RPCError) Error() string { return e.Message }

func invalidParams(message string, data interface{}) *RPCError {
	return &RPCError{Code: codeInvalidParams, Message: message, Data: data, status: http.StatusBadRequest}
}

func writeError(w http.ResponseWriter, status int, id interface{}, code int, message string, data interface{}) {
	if status <= 0 {
		status = http.StatusBadRequest
	}
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
	errObj := &RPCError{Code: code, Message: message}
	if data != nil {
		errObj.Data = data
	}
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Error: errObj}
	_ = json.NewEncoder(w).Encode(resp)
}

func writeResult(w http.ResponseWriter, id interface{}, result interface{}) {
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Result: result}
	_ = json.NewEncoder(w).Encode(resp)
}

// toRPCError maps a contract or server error onto a JSON-RPC error object and
// the HTTP status it is served with.
func toRPCError(err error) *RPCError {
	var rpcErr *RPCError
	if errors.As(err, &rpcErr) {
		if rpcErr.status == 0 {
			rpcErr.status = http.StatusBadRequest
		}
		return rpcErr
	}
	code, status := codeServerError, http.StatusInternalServerError
	switch {
	case errors.Is(err, common.ErrUnauthorized), errors.Is(err, common.ErrNotOwner):
		code, status = codeUnauthorized, http.StatusForbidden
	case errors.Is(err, common.ErrNotFound):
		code, status = codeNotFound, http.StatusNotFound
	case errors.Is(err, common.ErrInvalidAmount), errors.Is(err, common.ErrZeroAddress):
		code, status = codeInvalidParams, http.StatusBadRequest
	case errors.Is(err, common.ErrNotEmpty),
		errors.Is(err, common.ErrInsufficientBalance),
		errors.Is(err, common.ErrInsufficientCollateral),
		errors.Is(err, common.ErrPositionHealthy),
		errors.Is(err, common.ErrTransferFailed),
		errors.Is(err, common.ErrModulePaused),
		errors.Is(err, common.ErrAlreadyInitialized),
		errors.Is(err, common.ErrCallDepth):
		code, status = codeRejected, http.StatusConflict
	case errors.Is(err, common.ErrOracleUnavailable), errors.Is(err, common.ErrNotInitialized):
		code, status = codeUnavailable, http.StatusServiceUnavailable
	}
	return &RPCError{Code: code, Message: err.Error(), status: status}
}
