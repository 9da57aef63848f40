package hub

// Response is the envelope of every REST reply.
type Response struct {
	Status     string `json:"status"`      // "success" or "error"
	StatusCode int    `json:"status_code"` // HTTP status code
	Data       any    `json:"data,omitempty"`
	Error      string `json:"error,omitempty"`
	// Code and Column qualify errors the client can act on.
	Code   string `json:"code,omitempty"`
	Column string `json:"column,omitempty"`
}

// CodeMissingColumn marks a write rejected for a column the backing store
// does not have; Column names it.
const CodeMissingColumn = "MISSING_COLUMN"

// CodeUnknownTable marks a request for a table that does not exist.
const CodeUnknownTable = "UNKNOWN_TABLE"

// UpsertRequest is the body of POST /tables/:table/upsert.
type UpsertRequest struct {
	Rows []map[string]any `json:"rows"`
}

func success(statusCode int, data any) Response {
	return Response{Status: "success", StatusCode: statusCode, Data: data}
}

func failure(statusCode int, err string) Response {
	return Response{Status: "error", StatusCode: statusCode, Error: err}
}
