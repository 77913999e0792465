package call

import "errors"

var (
	ErrCallNotFound     = errors.New("function call not found")
	ErrAlreadyFinalized = errors.New("function call already finalized")
)

// ExecError 带分类的执行错误
// dispatch之前发生的直接返回调用方且不落审计行，之后的以FunctionCall记录为准
type ExecError struct {
	errType ErrorType
	message string
	cause   error
}

func NewExecError(errType ErrorType, message string, cause error) *ExecError {
	return &ExecError{
		errType: errType,
		message: message,
		cause:   cause,
	}
}

func (e *ExecError) Error() string {
	if e.cause != nil {
		return e.message + ": " + e.cause.Error()
	}
	return e.message
}

func (e *ExecError) Type() ErrorType {
	return e.errType
}

func (e *ExecError) Message() string {
	return e.message
}

func (e *ExecError) Unwrap() error {
	return e.cause
}

// AsExecError 提取ExecError，非分类错误返回false
func AsExecError(err error) (*ExecError, bool) {
	var execErr *ExecError
	if errors.As(err, &execErr) {
		return execErr, true
	}
	return nil, false
}
