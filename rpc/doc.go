// Package rpc serves the detector pool over gRPC as yolodet.DetectService.
//
// The service speaks JSON only. Messages are plain Go structs, not generated
// protobuf types, so every call must use the "json" content-subtype
// (content-type application/grpc+json). DetectServiceClient sets it on each
// call; other clients pass grpc.CallContentSubtype("json") or the equivalent
// in their stack. A call using the default proto codec fails with
// codes.Internal because the replies cannot be proto-encoded.
//
// yolodet.proto documents the methods and the message shapes; field names
// there are the JSON keys on the wire.
package rpc
