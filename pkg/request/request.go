// Package request maps incoming verb request bodies onto the fields a
// receipt records.
package request

// NormalizedRequest is the receipt-relevant part of a request body.
type NormalizedRequest struct {
	X402    any `json:"x402,omitempty"`
	Trace   any `json:"trace,omitempty"`
	Payload any `json:"payload,omitempty"`
}

// Normalize extracts x402, trace and payload from body. A missing or null
// payload falls back to the legacy "input" member. A nil body yields an
// empty request.
func Normalize(body map[string]any) NormalizedRequest {
	if body == nil {
		return NormalizedRequest{}
	}
	payload := body["payload"]
	if payload == nil {
		payload = body["input"]
	}
	return NormalizedRequest{
		X402:    body["x402"],
		Trace:   body["trace"],
		Payload: payload,
	}
}
