package errno

// Kind 描述错误的处置方式，调用方据此决定是否允许重试
type Kind string

const (
	// KindValidation 请求参数不合法，Session 尚未创建就被拒绝
	KindValidation Kind = "validation"
	// KindRetryable 短暂失败 (锁竞争、Challenge 过期、确认延迟)，建议稍后重试
	KindRetryable Kind = "retryable"
	// KindRecoverable 用户主动取消等可恢复状态，回到确认页，不展示错误
	KindRecoverable Kind = "recoverable"
	// KindTerminal 终态失败，必须重新发起一个全新的 Session
	KindTerminal Kind = "terminal"
)

// Errno defines the error code logic
type Errno struct {
	Code    int
	Kind    Kind
	Message string
}

func (e Errno) Error() string {
	return e.Message
}

// WithMessage 返回一个携带具体消息的副本 (Code/Kind 不变)
func (e Errno) WithMessage(msg string) Errno {
	e.Message = msg
	return e
}

// Decode tries to convert an error to Errno
func Decode(err error) (int, string) {
	if err == nil {
		return OK.Code, OK.Message
	}

	switch typed := err.(type) {
	case *Errno:
		return typed.Code, typed.Message
	case Errno:
		return typed.Code, typed.Message
	default:
		return InternalServerError.Code, err.Error()
	}
}

// KindOf 返回错误的 Kind；非 Errno 错误一律视为 terminal
func KindOf(err error) Kind {
	switch typed := err.(type) {
	case *Errno:
		return typed.Kind
	case Errno:
		return typed.Kind
	default:
		return KindTerminal
	}
}

// IsRetryable 判断调用方是否可以在短暂退避后重试
func IsRetryable(err error) bool {
	return KindOf(err) == KindRetryable
}

// Common Errors
var (
	OK                  = Errno{Code: 0, Kind: "", Message: "Success"}
	InternalServerError = Errno{Code: 10001, Kind: KindTerminal, Message: "Internal server error"}
	ErrBind             = Errno{Code: 10002, Kind: KindValidation, Message: "Error occurred while binding the request body to the struct"}
	ErrDatabase         = Errno{Code: 10004, Kind: KindTerminal, Message: "Database error"}
)

// Session Errors (20100+)
var (
	ErrSessionNotFound  = Errno{Code: 20101, Kind: KindValidation, Message: "Session not found"}
	ErrSessionTerminal  = Errno{Code: 20102, Kind: KindValidation, Message: "Session already reached a terminal state"}
	ErrInvalidRecipient = Errno{Code: 20103, Kind: KindValidation, Message: "Recipient is not a valid chain address"}
	ErrInvalidAmount    = Errno{Code: 20104, Kind: KindValidation, Message: "Amount must be greater than zero"}
	ErrAmountTooLarge   = Errno{Code: 20105, Kind: KindValidation, Message: "Amount exceeds the configured maximum"}
	ErrAmountPrecision  = Errno{Code: 20106, Kind: KindValidation, Message: "Amount has more decimal places than the chain supports"}
)

// Authorization Errors (20200+)
var (
	ErrCeremonyBusy      = Errno{Code: 20201, Kind: KindRetryable, Message: "Another authorization is in progress, try again shortly"}
	ErrChallengeExpired  = Errno{Code: 20202, Kind: KindRetryable, Message: "Authorization challenge expired, request a new one"}
	ErrCeremonyCancelled = Errno{Code: 20203, Kind: KindRecoverable, Message: "Authorization cancelled"}
	ErrAuthInvalidState  = Errno{Code: 20204, Kind: KindTerminal, Message: "Authenticator is in an invalid state, please refresh and retry"}
	ErrAuthInsecure      = Errno{Code: 20205, Kind: KindTerminal, Message: "Authorization requires a secure context"}
	ErrAuthFailed        = Errno{Code: 20206, Kind: KindTerminal, Message: "Authorization failed"}
	ErrCeremonyTimeout   = Errno{Code: 20207, Kind: KindRetryable, Message: "Authorization timed out, try again"}
	ErrSubmitRejected    = Errno{Code: 20208, Kind: KindTerminal, Message: "Operation was rejected by the chain"}
)

// Deployment Errors (20300+)
var (
	ErrNeedsFunds      = Errno{Code: 20301, Kind: KindTerminal, Message: "Account balance is below the deployment reserve, please fund it first"}
	ErrDeployUnsettled = Errno{Code: 20302, Kind: KindRetryable, Message: "Account deployment not yet confirmed on-chain"}
	ErrDeployBusy      = Errno{Code: 20303, Kind: KindRetryable, Message: "Account deployment already in progress"}
)
