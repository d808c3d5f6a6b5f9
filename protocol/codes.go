package protocol

// Status codes reported by the PaddleOCR-json worker in the "code" field.
const (
	CodeOK     = 100 // text recognized
	CodeOKNone = 101 // success, no text found

	CodeErrPathExist  = 200 // image path does not exist
	CodeErrPathConv   = 201 // image path could not be converted to a wide string
	CodeErrPathRead   = 202 // image path exists but cannot be opened
	CodeErrPathDecode = 203 // image opened but could not be decoded

	CodeErrClipOpen    = 210
	CodeErrClipEmpty   = 211
	CodeErrClipFormat  = 212
	CodeErrClipData    = 213
	CodeErrClipFiles   = 214
	CodeErrClipGetObj  = 215
	CodeErrClipBitmap  = 216
	CodeErrClipChannel = 217

	CodeErrBase64Decode   = 300 // base64 string could not be decoded
	CodeErrBase64ImDecode = 301 // base64 decoded but not an image

	CodeErrJSONDump     = 400
	CodeErrJSONParse    = 401 // request line is not valid JSON
	CodeErrJSONParseKey = 402 // a request key had the wrong type
	CodeErrNoTask       = 403 // request carried no image source
)

// Client-side codes. The worker never emits these; they label transport
// failures when a result has to be reported in the worker's code space.
const (
	CodeEngineMissing   = 901
	CodeWorkerCrashed   = 902
	CodeNoResponse      = 903
	CodeRequestEncoding = 904
	CodeResponseDecode  = 905
)

// IsSuccess reports whether code is one of the two success codes.
func IsSuccess(code int) bool {
	return code == CodeOK || code == CodeOKNone
}

// CodeText returns a short description of a status code.
func CodeText(code int) string {
	switch code {
	case CodeOK:
		return "text recognized"
	case CodeOKNone:
		return "no text found"
	case CodeErrPathExist:
		return "image path does not exist"
	case CodeErrPathConv:
		return "image path conversion failed"
	case CodeErrPathRead:
		return "image open failed"
	case CodeErrPathDecode:
		return "image decode failed"
	case CodeErrBase64Decode:
		return "base64 decode failed"
	case CodeErrBase64ImDecode:
		return "base64 image decode failed"
	case CodeErrJSONDump:
		return "json dump failed"
	case CodeErrJSONParse:
		return "json parse failed"
	case CodeErrJSONParseKey:
		return "json key parse failed"
	case CodeErrNoTask:
		return "no valid task"
	case CodeEngineMissing:
		return "engine instance does not exist"
	case CodeWorkerCrashed:
		return "worker process has exited"
	case CodeNoResponse:
		return "no response from worker"
	case CodeRequestEncoding:
		return "request encoding failed"
	case CodeResponseDecode:
		return "response decoding failed"
	}
	if code >= CodeErrClipOpen && code <= CodeErrClipChannel {
		return "clipboard error"
	}
	return "unknown status"
}
