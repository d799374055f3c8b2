package signal

import (
	"errors"
	"fmt"
)

var (
	// ErrAuthentication 表示 webhook secret 无效（HTTP 401）。
	ErrAuthentication = errors.New("invalid webhook secret")
	// ErrValidation 表示 signal/symbol 不合法（HTTP 400）。
	ErrValidation = errors.New("invalid signal payload")
	// ErrStrategyInactive 表示策略已停用（HTTP 400）。
	ErrStrategyInactive = errors.New("strategy is inactive")
)

func wrapValidation(format string, v ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, v...))
}
