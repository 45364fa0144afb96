package gateway

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/elizaOS/mcp-gateway/internal/payment"
	"github.com/elizaOS/mcp-gateway/pkg/logging"
)

// jsonRPCRequest is the POST /message body shape, per spec §6.
type jsonRPCRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      interface{}     `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
}

type jsonRPCResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      interface{}     `json:"id"`
	Result  interface{}     `json:"result,omitempty"`
	Error   *jsonRPCErrBody `json:"error,omitempty"`
}

type jsonRPCErrBody struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// NewHTTPHandler builds the optional HTTP wrapper surface of spec §4.7/§6:
// POST /message, GET /sse, and the supplemented GET /stats administrative
// endpoint.
func NewHTTPHandler(f *FrontEnd) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "Authorization", "X-PAYMENT", "X-ELIZA-API-KEY"},
		MaxAge:         300,
	}))

	r.Post("/message", f.handleMessage)
	r.Get("/sse", f.handleSSE)
	r.Get("/stats", f.handleStats)

	return r
}

func (f *FrontEnd) handleMessage(w http.ResponseWriter, r *http.Request) {
	var req jsonRPCRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONRPCError(w, nil, internalError("malformed request body"))
		return
	}

	switch req.Method {
	case "tools/list":
		writeJSONRPCResult(w, req.ID, map[string]interface{}{"tools": f.ListTools()})
	case "resources/list":
		writeJSONRPCResult(w, req.ID, map[string]interface{}{"resources": f.ListResources()})
	case "prompts/list":
		writeJSONRPCResult(w, req.ID, map[string]interface{}{"prompts": f.ListPrompts()})
	case "tools/call":
		f.handleCallTool(w, r, req)
	case "resources/read":
		f.handleReadResource(w, r, req)
	case "prompts/get":
		f.handleGetPrompt(w, r, req)
	default:
		writeJSONRPCError(w, req.ID, methodNotFound("unknown method "+req.Method))
	}
}

func (f *FrontEnd) handleCallTool(w http.ResponseWriter, r *http.Request, req jsonRPCRequest) {
	var params struct {
		Name      string                 `json:"name"`
		Arguments map[string]interface{} `json:"arguments"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		writeJSONRPCError(w, req.ID, internalError("malformed tools/call params"))
		return
	}

	result, rpcErr := f.CallTool(r.Context(), params.Name, params.Arguments, r.Header, "/tools/"+params.Name)
	if rpcErr != nil {
		writeChallengeOr402(w, req.ID, rpcErr)
		return
	}
	writeJSONRPCResult(w, req.ID, result)
}

func (f *FrontEnd) handleReadResource(w http.ResponseWriter, r *http.Request, req jsonRPCRequest) {
	var params struct {
		URI string `json:"uri"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		writeJSONRPCError(w, req.ID, internalError("malformed resources/read params"))
		return
	}

	result, rpcErr := f.ReadResource(r.Context(), params.URI, r.Header)
	if rpcErr != nil {
		writeChallengeOr402(w, req.ID, rpcErr)
		return
	}
	writeJSONRPCResult(w, req.ID, result)
}

func (f *FrontEnd) handleGetPrompt(w http.ResponseWriter, r *http.Request, req jsonRPCRequest) {
	var params struct {
		Name      string            `json:"name"`
		Arguments map[string]string `json:"arguments"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		writeJSONRPCError(w, req.ID, internalError("malformed prompts/get params"))
		return
	}

	result, rpcErr := f.GetPrompt(r.Context(), params.Name, params.Arguments, r.Header)
	if rpcErr != nil {
		writeChallengeOr402(w, req.ID, rpcErr)
		return
	}
	writeJSONRPCResult(w, req.ID, result)
}

// writeChallengeOr402 emits HTTP 402 with X-Accept-Payment + JSON body for
// a payment-required RPCError (spec §4.5.4's HTTP wrapper binding); any
// other RPCError gets the standard JSON-RPC error envelope.
func writeChallengeOr402(w http.ResponseWriter, id interface{}, rpcErr *RPCError) {
	requirements, ok := rpcErr.Data.(*payment.Requirements)
	if rpcErr.Message != "payment required" || !ok {
		writeJSONRPCError(w, id, rpcErr)
		return
	}

	body, err := json.Marshal(requirements)
	if err != nil {
		logging.Warn(subsystem, "failed to marshal payment requirements: %v", err)
		writeJSONRPCError(w, id, internalError("payment requirements unavailable"))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Accept-Payment", string(body))
	w.WriteHeader(http.StatusPaymentRequired)
	_, _ = w.Write(body)
}

func (f *FrontEnd) handleSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	<-r.Context().Done()
}

func (f *FrontEnd) handleStats(w http.ResponseWriter, r *http.Request) {
	stats := f.registry.GetStats()
	writeJSON(w, http.StatusOK, stats)
}

func writeJSONRPCResult(w http.ResponseWriter, id interface{}, result interface{}) {
	writeJSON(w, http.StatusOK, jsonRPCResponse{JSONRPC: "2.0", ID: id, Result: result})
}

func writeJSONRPCError(w http.ResponseWriter, id interface{}, rpcErr *RPCError) {
	writeJSON(w, http.StatusOK, jsonRPCResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error:   &jsonRPCErrBody{Code: rpcErr.Code, Message: rpcErr.Message, Data: rpcErr.Data},
	})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
