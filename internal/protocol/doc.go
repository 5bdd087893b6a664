// Package protocol defines the wire envelopes exchanged with the notebook
// agent over its streaming endpoint, and the shared model types (suggestions,
// plan steps, notebook context) used by the session layer.
//
// # Envelopes
//
// Every frame is a JSON object with a "type" discriminator. Decode parses an
// inbound frame into its typed envelope:
//
//	msg, err := protocol.Decode(data)
//	switch m := msg.(type) {
//	case *protocol.StreamChunk:
//	    // m.Accumulated, m.MessageID
//	case *protocol.Response:
//	    // m.Message, m.Suggestions, m.ExecutionPlan
//	}
//
// Unknown discriminators return ErrUnknownType so callers can drop frames from
// newer servers without tearing down the connection.
//
// Outbound envelopes are built with the New* constructors and serialized with
// Encode:
//
//	data, err := protocol.Encode(protocol.NewChat("plot y", ctx, model, true))
//
// # Streaming
//
// stream_chunk frames carry the full accumulated text of the in-flight reply,
// not deltas. The latest chunk always wins, so duplication and transient
// reordering of at most the newest frame are self-correcting.
package protocol
