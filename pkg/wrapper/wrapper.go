package wrapper

// JSONResult pairs an HTTP status code with the body to serialize.
type JSONResult struct {
	Code int         `json:"-"`
	Data interface{} `json:"data"`
}

// ErrorBody is the machine-readable error detail clients branch on.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ErrorEnvelope is the body of every error response.
type ErrorEnvelope struct {
	Error ErrorBody `json:"error"`
}

func ResponseSuccess(httpCode int, data interface{}) JSONResult {
	return JSONResult{
		Code: httpCode,
		Data: data,
	}
}

func ResponseError(httpCode int, errorCode, message string) JSONResult {
	return JSONResult{
		Code: httpCode,
		Data: ErrorEnvelope{
			Error: ErrorBody{
				Code:    errorCode,
				Message: message,
			},
		},
	}
}
