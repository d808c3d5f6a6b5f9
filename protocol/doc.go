// Package protocol implements the PaddleOCR-json line protocol.
//
// The worker speaks one JSON object per line over its standard streams:
//
//	stdout (first line)  pid=12345, a=127.0.0.1:8080
//	stdin               {"image_path":"/tmp/a.png","limit_side_len":960}
//	stdout              {"code":100,"data":[{"box":[[10,20],[150,20],[150,50],[10,50]],"score":0.95,"text":"Hello World"}]}
//
// Requests carry no identifier. Replies are paired with requests purely by
// order, so a caller must never have more than one request outstanding.
package protocol
