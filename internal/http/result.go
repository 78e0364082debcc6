package httpapi

// Result 统一响应包
// - code: 2000 成功，-1 失败
// - type: 'success' | 'error' | 'warning'
// - errors: 校验失败/瞬时故障时的逐条信息，调用方应全部展示
// HTTP 状态码区分错误类别：400 输入/校验，503 可重试，500 其他
type Result[T any] struct {
	Code    int      `json:"code"`
	Type    string   `json:"type"`
	Message string   `json:"message"`
	Result  T        `json:"result"`
	Errors  []string `json:"errors,omitempty"`
}

const (
	ResultSuccess = 2000
	ResultError   = -1
)

func Ok[T any](result T) Result[T] {
	return Result[T]{Code: ResultSuccess, Type: "success", Message: "ok", Result: result}
}

func Fail(message string) Result[any] {
	return Result[any]{Code: ResultError, Type: "error", Message: message, Result: nil}
}

// FailWithErrors 带逐条错误信息的失败响应
func FailWithErrors(message string, errs []string) Result[any] {
	r := Fail(message)
	r.Errors = errs
	return r
}
