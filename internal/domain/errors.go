package domain

import (
	"fmt"

	"github.com/pkg/errors"
)

// 错误分类：全部为本地、同步、不可重试的错误，由调用方提示用户后重新操作
var (
	// ErrUnauthenticated 当前没有有效会话
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrInvalidInput 非法输入（价格/数量非正、交易对不识别等）
	ErrInvalidInput = errors.New("invalid input")
	// ErrInvalidCredential 登录凭证为空或密码不匹配
	ErrInvalidCredential = errors.New("invalid credential")
	// ErrInsufficientFunds 资金预留前置条件不满足
	ErrInsufficientFunds = errors.New("insufficient funds")
	// ErrNotFound 记录不存在
	ErrNotFound = errors.New("not found")
	// ErrStorageFailure 存储层失败（不透明），当前操作整体放弃
	ErrStorageFailure = errors.New("storage failure")
)

// StorageError 包装存储层的原始错误。
// errors.Is(err, ErrStorageFailure) 对它恒成立，原始错误通过 Unwrap 取得。
type StorageError struct {
	Op  string
	Key string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage failure: %s %s: %v", e.Op, e.Key, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

func (e *StorageError) Is(target error) bool { return target == ErrStorageFailure }

// NewStorageError 构造存储错误
func NewStorageError(op, key string, err error) error {
	if err == nil {
		return nil
	}
	return &StorageError{Op: op, Key: key, Err: err}
}

// InvalidInputf 返回带上下文的 ErrInvalidInput
func InvalidInputf(format string, args ...interface{}) error {
	return errors.Wrapf(ErrInvalidInput, format, args...)
}
