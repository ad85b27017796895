package core

import "errors"

// Error is a validation failure carrying the result code reported to the
// host over the command bridge.
type Error struct {
	Code uint8
	msg  string
}

func newError(code uint8, msg string) *Error {
	return &Error{Code: code, msg: msg}
}

func (e *Error) Error() string {
	return e.msg
}

// ResultOK is the wire result code for success.
const ResultOK = 0

// Configuration and addressing errors. All of them are raised before any
// register is written.
var (
	ErrSpeedMismatch   = newError(0xd0, "spi: clock divider not valid for speed mode")
	ErrInvalidMode     = newError(0xd1, "spi: mode outside 0-3")
	ErrNullConfig      = newError(0xd2, "spi: missing configuration")
	ErrBadSlaveAddress = newError(0xd3, "i2c: slave address outside 1-127")
	ErrBadDirectionBit = newError(0xd4, "i2c: direction bit outside 0-1")
	ErrBitRate         = newError(0xd5, "i2c: bus frequency not reachable")
	ErrInvalidPin      = newError(0xd6, "gpio: pin outside port")
	ErrBadRegister     = newError(0xd7, "register outside the peripheral set")
	ErrArgRange        = newError(0xd8, "command argument does not fit in a byte")
)

var codedErrors = []*Error{
	ErrSpeedMismatch,
	ErrInvalidMode,
	ErrNullConfig,
	ErrBadSlaveAddress,
	ErrBadDirectionBit,
	ErrBitRate,
	ErrInvalidPin,
	ErrBadRegister,
	ErrArgRange,
}

// ResultCode maps err to the code sent in a result response. Errors without
// a code map to 0xff.
func ResultCode(err error) uint8 {
	if err == nil {
		return ResultOK
	}
	var e *Error
	if errors.As(err, &e) && e.Code != 0 {
		return e.Code
	}
	return 0xff
}

// ErrorForCode is the inverse of ResultCode.
func ErrorForCode(code uint8) error {
	if code == ResultOK {
		return nil
	}
	for _, e := range codedErrors {
		if e.Code == code {
			return e
		}
	}
	return errors.New("unknown result code 0x" + hexByte(code))
}

func hexByte(b uint8) string {
	const digits = "0123456789abcdef"
	return string([]byte{digits[b>>4], digits[b&0x0f]})
}
