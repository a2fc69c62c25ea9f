// Package wire implements the payload codec for bridge messages.
//
// The wire format is a UTF-8 JSON object carrying the full state mapping of
// the bridge, never a delta:
//
//	{"On": true, "Brightness": 80}
//
// Both directions of the bridge use the same format: outbound flushes encode
// the coalesced snapshot, inbound remote messages decode into a state mapping
// for the host reconciliation hook. Payloads whose top level is not a JSON
// object are rejected.
package wire
